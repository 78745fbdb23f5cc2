// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/session"
)

// Scheduler runs the periodic maintenance jobs: pruning the notification
// feed and sweeping idle admin sessions.
type Scheduler struct {
	feed    *notify.Log
	tracker *session.Tracker
	cron    *cron.Cron
	logger  *slog.Logger
}

// New creates a new scheduler instance.
func New(feed *notify.Log, tracker *session.Tracker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		feed:    feed,
		tracker: tracker,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start registers the jobs and begins the cron loop. The per-append prune
// already bounds the feed; the nightly run only exists to clean up after
// direct store writes that bypass the log.
func (s *Scheduler) Start() error {
	// Nightly at 03:00
	if _, err := s.cron.AddFunc("0 3 * * *", s.pruneFeed); err != nil {
		return err
	}

	// Every minute
	if _, err := s.cron.AddFunc("* * * * *", s.sweepSessions); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) pruneFeed() {
	removed, err := s.feed.Prune(context.Background())
	if err != nil {
		s.logger.Error("failed to prune notification feed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("pruned notification feed", "removed", removed)
	}
}

func (s *Scheduler) sweepSessions() {
	expired := s.tracker.Sweep()
	if len(expired) == 0 {
		return
	}
	s.logger.Info("swept idle admin sessions", "count", len(expired))
	if err := s.feed.Append(context.Background(), notify.TypeSystem,
		fmt.Sprintf("%d admin session(s) expired after inactivity", len(expired))); err != nil {
		s.logger.Error("failed to record session expiry", "error", err)
	}
}
