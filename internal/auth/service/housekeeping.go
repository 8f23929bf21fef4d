package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
)

// HousekeepingService periodically deletes expired sessions, verifications
// and side-channel records. Reads already filter expired rows; this only
// bounds table growth.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. If interval is 0 or
// negative, it defaults to 1 hour.
func NewHousekeepingService(
	store store.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Metrics:  m,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop is called.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass and returns the number of rows deleted. Each table
// is cleaned independently; a failure in one does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	tasks := []struct {
		kind string
		fn   func(context.Context) (int64, error)
	}{
		{"sessions", s.Store.Sessions().DeleteExpiredSessions},
		{"verifications", s.Store.Verifications().DeleteExpiredVerifications},
		{"side_channel", s.Store.SideChannel().DeleteExpiredSideChannel},
	}

	var total int64
	for _, t := range tasks {
		n, err := t.fn(ctx)
		if err != nil {
			s.Logger.Error("failed to delete expired records", "kind", t.kind, "error", err)
			continue
		}
		s.Metrics.HousekeepingDeleted(t.kind, n)
		total += n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
	return total
}
