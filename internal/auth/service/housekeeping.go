package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quayside/supplygate/internal/auth/store"
)

// HousekeepingService periodically clears expired lockout state so stale
// locked_until timestamps don't accumulate. Lock checks already compare
// against the clock, so this is tidiness, not correctness.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the background worker, blocking until any in-progress
// sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep clears expired locks independently per table; a failure on one
// does not stop the other.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now()

	cleared, err := s.Store.Credentials().ClearExpiredLocks(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired credential locks", "error", err)
	} else if cleared > 0 {
		s.Logger.Info("cleared expired credential locks", "count", cleared)
	}

	cleared, err = s.Store.Users().ClearExpiredLocks(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired user locks", "error", err)
	} else if cleared > 0 {
		s.Logger.Info("cleared expired user locks", "count", cleared)
	}
}
