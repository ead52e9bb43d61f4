// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernel implements the ten mailbox operations over
// internal/store, with argument validation, per-caller authorization,
// and the typed error taxonomy in error.go. It is the "kernel context
// value" that replaces the original implementation's global
// singletons: every operation takes an explicit *Kernel receiver and
// an explicit self (the caller's resolved identity), never consulting
// ambient state.
package kernel

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ai-mail/mailbox/lib/clock"

	"github.com/ai-mail/mailbox/internal/store"
)

// IDGenerator allocates collision-resistant message and thread ids.
// Production wires uuid.New().String(); tests may inject a
// deterministic sequence.
type IDGenerator func() string

// Kernel holds the dependencies every mailbox operation needs: the
// store, a clock for timestamps, and an id generator. It has no
// mutable state of its own — all state lives in the store.
type Kernel struct {
	store        *store.Store
	clock        clock.Clock
	newID        IDGenerator
	logger       *slog.Logger
	activeWindow time.Duration
}

// Config holds the parameters for constructing a Kernel.
type Config struct {
	Store  *store.Store
	Clock  clock.Clock
	NewID  IDGenerator
	Logger *slog.Logger

	// ActiveWindow overrides list_agents' active_only lookback.
	// <= 0 defaults to DefaultActiveWindow.
	ActiveWindow time.Duration
}

// New constructs a Kernel. Store is required; Clock, NewID, Logger,
// and ActiveWindow default to clock.Real(), a UUID v4 generator, a
// discard logger, and DefaultActiveWindow respectively.
func New(cfg Config) *Kernel {
	k := &Kernel{
		store:        cfg.Store,
		clock:        cfg.Clock,
		newID:        cfg.NewID,
		logger:       cfg.Logger,
		activeWindow: cfg.ActiveWindow,
	}
	if k.clock == nil {
		k.clock = clock.Real()
	}
	if k.newID == nil {
		k.newID = func() string { return uuid.New().String() }
	}
	if k.logger == nil {
		k.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if k.activeWindow <= 0 {
		k.activeWindow = DefaultActiveWindow
	}
	return k
}

const (
	maxLimit  = 100
	minLimit  = 1
	maxDays   = 365
	minDays   = 1
	checkMailDefaultLimit = 10
	checkMailDefaultDays  = 7
	searchDefaultLimit    = 20
	searchDefaultDays     = 30
)

func validLimit(limit, fallback int) (int, *Error) {
	if limit == 0 {
		limit = fallback
	}
	if limit < minLimit || limit > maxLimit {
		return 0, InvalidArgument("limit must be between %d and %d, got %d", minLimit, maxLimit, limit)
	}
	return limit, nil
}

func validDaysBack(days, fallback int) (int, *Error) {
	if days == 0 {
		days = fallback
	}
	if days < minDays || days > maxDays {
		return 0, InvalidArgument("days_back must be between %d and %d, got %d", minDays, maxDays, days)
	}
	return days, nil
}

// daysBackCutoff converts a validated days-back window into an
// absolute instant against k.clock, so store queries compare
// timestamps to a fixed value instead of re-deriving "now" themselves.
func (k *Kernel) daysBackCutoff(days int) time.Time {
	return k.clock.Now().AddDate(0, 0, -days)
}

func validPriorityFilter(p store.Priority) *Error {
	if p == "" {
		return nil
	}
	if !p.Valid() {
		return InvalidArgument("priority_filter: invalid priority %q", p)
	}
	return nil
}

// wrapStorage maps an unexpected store error to a KindStorageFailure
// kernel error, never leaking the underlying text beyond a short
// detail (per the error-shaping rule in the tool dispatcher).
func wrapStorage(op string, err error) *Error {
	return StorageFailure("%s: storage error", op)
}
