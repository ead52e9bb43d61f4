// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ai-mail-orchestrator is a periodic summarizer over the mailbox
// store. It is deliberately outside the tested kernel surface: it
// opens the store read-only relative to the ten tool operations (it
// never mutates messages or agents), polls at a fixed interval, and
// logs one summary line per agent per tick. It exists for operators
// watching a fleet of agents, not for agents themselves.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ai-mail/mailbox/internal/config"
	"github.com/ai-mail/mailbox/internal/identity"
	"github.com/ai-mail/mailbox/internal/store"
	"github.com/ai-mail/mailbox/lib/clock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ai-mail-orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDirFlag string
		interval    time.Duration
		once        bool
	)

	flagSet := pflag.NewFlagSet("ai-mail-orchestrator", pflag.ContinueOnError)
	flagSet.StringVar(&dataDirFlag, "data-dir", "", "mailbox data directory (overrides AI_MAIL_DATA_DIR)")
	flagSet.DurationVar(&interval, "interval", 5*time.Minute, "how often to log a summary")
	flagSet.BoolVar(&once, "once", false, "log one summary and exit instead of polling")
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

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	} else if envDir := os.Getenv("AI_MAIL_DATA_DIR"); envDir != "" {
		cfg.DataDir = envDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(store.Config{
		Path:     cfg.DataDir + "/mailbox.db",
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	clk := clock.Real()
	ctx := context.Background()

	summarize(ctx, st, clk, logger, cfg.OnlineWindow)
	if once {
		return nil
	}

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		summarize(ctx, st, clk, logger, cfg.OnlineWindow)
	}
	return nil
}

// summarize logs one line per known agent with its inbox counters and
// derived presence, plus one fleet-wide totals line. It never mutates
// the store: every call is a read against messages/agents.
func summarize(ctx context.Context, st *store.Store, clk clock.Clock, logger *slog.Logger, onlineWindow time.Duration) {
	agents, err := st.ListAgents(ctx, nil)
	if err != nil {
		logger.Error("orchestrator: listing agents failed", "error", err)
		return
	}

	var online, offline int
	for _, a := range agents {
		status := identity.DeriveStatus(clk, a.LastSeen, onlineWindow)
		if status == identity.StatusOnline {
			online++
		} else {
			offline++
		}

		stats, err := st.Stats(ctx, a.Name)
		if err != nil {
			logger.Warn("orchestrator: stats failed", "agent", a.Name, "error", err)
			continue
		}
		logger.Info("agent summary",
			"agent", a.Name,
			"status", status,
			"unread_inbox", stats.UnreadInbox,
			"unread_urgent", stats.UnreadUrgent,
			"total_inbox", stats.TotalInbox,
		)
	}

	logger.Info("fleet summary", "agents_total", len(agents), "online", online, "offline", offline)
}
