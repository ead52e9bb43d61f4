// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ai-mail is the local inter-agent mailbox service. Invoked with no
// flags, it runs the JSON-RPC server on stdio until stdin closes.
// --list-agents, --stats, and --cleanup invoke a single kernel
// operation and exit instead of starting the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ai-mail/mailbox/internal/config"
	"github.com/ai-mail/mailbox/internal/dispatch"
	"github.com/ai-mail/mailbox/internal/lifecycle"
	"github.com/ai-mail/mailbox/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ai-mail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listAgents  bool
		stats       bool
		cleanup     bool
		configPath  string
		dataDirFlag string
	)

	flagSet := pflag.NewFlagSet("ai-mail", pflag.ContinueOnError)
	flagSet.BoolVar(&listAgents, "list-agents", false, "list known agents and their presence, then exit")
	flagSet.BoolVar(&stats, "stats", false, "print mailbox stats for this agent, then exit")
	flagSet.BoolVar(&cleanup, "cleanup", false, "delete old archived messages and stale agent records, then exit")
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (overrides AI_MAIL_CONFIG)")
	flagSet.StringVar(&dataDirFlag, "data-dir", "", "mailbox data directory (overrides AI_MAIL_DATA_DIR)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			flagSet.PrintDefaults()
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	} else if envDir := os.Getenv("AI_MAIL_DATA_DIR"); envDir != "" {
		cfg.DataDir = envDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx := context.Background()
	server, err := lifecycle.Start(ctx, lifecycle.Config{
		DataDir:           cfg.DataDir,
		Logger:            logger,
		PoolSize:          cfg.PoolSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ActiveWindow:      cfg.ActiveWindow,
	})
	if err != nil {
		return fmt.Errorf("starting mailbox server: %w", err)
	}
	defer server.Shutdown(ctx)

	switch {
	case listAgents:
		return runListAgents(ctx, server, cfg)
	case stats:
		return runStats(ctx, server, cfg)
	case cleanup:
		return runCleanup(ctx, server)
	default:
		return runServe(ctx, server, cfg)
	}
}

func loadConfig(explicitPath string) (config.Config, error) {
	if explicitPath != "" {
		return config.LoadFile(explicitPath)
	}
	return config.Load()
}

func runServe(ctx context.Context, server *lifecycle.Server, cfg config.Config) error {
	d := dispatch.New(server.Kernel, server.Self, server.Clock(), cfg.OnlineWindow)
	return mcp.New(d).Run(ctx, os.Stdin, os.Stdout)
}

func runListAgents(ctx context.Context, server *lifecycle.Server, cfg config.Config) error {
	d := dispatch.New(server.Kernel, server.Self, server.Clock(), cfg.OnlineWindow)
	out, toolErr := d.Call(ctx, "list_agents", nil)
	if toolErr != nil {
		return fmt.Errorf("list_agents: %s", toolErr.Error())
	}
	return printJSON(out)
}

func runStats(ctx context.Context, server *lifecycle.Server, cfg config.Config) error {
	d := dispatch.New(server.Kernel, server.Self, server.Clock(), cfg.OnlineWindow)
	out, toolErr := d.Call(ctx, "get_mailbox_stats", nil)
	if toolErr != nil {
		return fmt.Errorf("get_mailbox_stats: %s", toolErr.Error())
	}
	return printJSON(out)
}

func runCleanup(ctx context.Context, server *lifecycle.Server) error {
	result, kerr := server.Kernel.Cleanup(ctx)
	if kerr != nil {
		return fmt.Errorf("cleanup: %s", kerr.Error())
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func printJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		// Not expected: dispatch and kernel both produce valid JSON.
		// Fall back to the raw bytes rather than failing the command.
		fmt.Println(string(data))
		return nil
	}
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
