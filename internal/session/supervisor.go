package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/alert"
	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/storage"
)

// Supervisor sweeps the registry on a fixed interval and checks each
// live session against the platform. Repeated failures get the session
// restarted from its persisted record; sessions whose status changed
// away from approved stay down.
type Supervisor struct {
	manager   *Manager
	store     storage.Storage
	logger    *zap.Logger
	alerts    alert.Notifier
	metrics   *metrics.Metrics
	interval  time.Duration
	threshold int
}

func newSupervisor(m *Manager) *Supervisor {
	return &Supervisor{
		manager:   m,
		store:     m.store,
		logger:    m.logger,
		alerts:    m.alerts,
		metrics:   m.metrics,
		interval:  m.opts.HealthInterval,
		threshold: m.opts.HealthThreshold,
	}
}

// Run blocks until ctx is canceled. Sweeps never overlap: the next one
// starts only after the previous finished.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("supervisor started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep checks a snapshot of the registry, so sessions added or removed
// mid-sweep are simply picked up next time.
func (s *Supervisor) sweep(ctx context.Context) {
	for _, rt := range s.manager.registry.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, rt)
	}
}

func (s *Supervisor) check(ctx context.Context, rt *Runtime) {
	if _, err := rt.api.GetMe(); err != nil {
		failures := rt.recordHealthFailure(err)
		s.logger.Warn("health check failed",
			zap.String("bot_id", rt.id),
			zap.Int("failures", failures),
			zap.Error(err))
		if failures >= s.threshold {
			s.restart(ctx, rt)
		}
		return
	}
	rt.markHealthy()
}

func (s *Supervisor) restart(ctx context.Context, rt *Runtime) {
	s.alerts.Notify(alert.CategoryHealth,
		fmt.Sprintf("restarting bot %s after %d failed health checks", rt.id, s.threshold))
	s.metrics.RestartsTotal.Inc()
	s.manager.stopAndRemove(rt)

	fresh, err := s.store.GetBot(ctx, rt.id)
	if err != nil {
		s.logger.Error("cannot reload bot record for restart",
			zap.String("bot_id", rt.id),
			zap.Error(err))
		s.alerts.Notify(alert.CategoryHealth,
			fmt.Sprintf("restart of bot %s failed: %v", rt.id, err))
		return
	}
	if fresh.Status != models.StatusApproved {
		s.logger.Info("leaving bot stopped, status is no longer approved",
			zap.String("bot_id", rt.id),
			zap.String("status", string(fresh.Status)))
		return
	}
	if _, err := s.manager.Add(ctx, fresh); err != nil {
		s.logger.Error("failed to restart bot session",
			zap.String("bot_id", rt.id),
			zap.Error(err))
		s.alerts.Notify(alert.CategoryHealth,
			fmt.Sprintf("restart of bot %s failed: %v", rt.id, err))
	}
}
