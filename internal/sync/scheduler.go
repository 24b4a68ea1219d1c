package sync

import (
	"time"

	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/models"
)

// ActiveLister narrows IntegrationStore to what the scheduler needs.
type ActiveLister interface {
	ListActive() ([]models.Integration, error)
}

// Scheduler periodically pull-syncs every active integration. A failed
// run flips that integration into the error status, which removes it
// from the next ListActive pass until an operator reactivates it.
type Scheduler struct {
	engine   *Engine
	store    ActiveLister
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
}

func NewScheduler(engine *Engine, store ActiveLister, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Run blocks until Stop is called. Call it from its own goroutine.
func (s *Scheduler) Run() {
	s.logger.Info("sync scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.stop:
			s.logger.Info("sync scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) runOnce() {
	integrations, err := s.store.ListActive()
	if err != nil {
		s.logger.Error("failed to list active integrations", zap.Error(err))
		return
	}

	for _, integration := range integrations {
		if _, err := s.engine.SyncData(integration.ID, integration.TenantID); err != nil {
			s.logger.Error("scheduled sync failed",
				zap.String("integration", integration.Name),
				zap.Error(err))
		}
	}
}
