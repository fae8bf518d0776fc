package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valuenetwork/valueflow/internal/domain"
)

const (
	defaultRevalueInterval = 15 * time.Minute
	revalueBatchSize       = 100
)

// RevaluerService keeps memoized resource values fresh: resources whose
// contribution graph changed after their last valuation are re-rolled on a
// schedule instead of during reads.
type RevaluerService struct {
	resources domain.ResourceStore
	rollup    *RollUpService
	logger    *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRevaluerService(rs domain.ResourceStore, rollup *RollUpService, logger *zap.Logger) *RevaluerService {
	return &RevaluerService{
		resources: rs,
		rollup:    rollup,
		logger:    logger,
		interval:  defaultRevalueInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *RevaluerService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the revaluer on a periodic schedule in a background goroutine.
func (s *RevaluerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("resource revaluer started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("resource revaluer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the revaluer.
func (s *RevaluerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RevaluerService) run(ctx context.Context) {
	stale, err := s.resources.ListStale(ctx, revalueBatchSize)
	if err != nil {
		s.logger.Error("failed to list stale resources", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	revalued := 0
	for i := range stale {
		if _, err := s.rollup.RollUp(ctx, stale[i].ID, nil); err != nil {
			s.logger.Warn("failed to revalue resource",
				zap.String("resource_id", stale[i].ID.String()),
				zap.Error(err))
			continue
		}
		revalued++
	}

	s.logger.Info("revalued stale resources",
		zap.Int("stale", len(stale)),
		zap.Int("revalued", revalued))
}
