// Package cleanup runs the background eviction sweep: expired tasks are
// purged from the store on a cron schedule so idle deployments do not
// accumulate garbage between reads.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/metrics"
	"github.com/hamidra/a2alite/internal/taskstore"
)

// ErrInvalidCron reports an unparseable schedule expression.
var ErrInvalidCron = errors.New("invalid cron expression")

// cronParser is configured for standard 5-field cron (minute hour day month weekday)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates and parses a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCron, err)
	}
	return sched, nil
}

// memoryPurger is implemented by stores that purge expired entries in bulk
// without I/O.
type memoryPurger interface {
	PurgeExpired() int
}

// durablePurger is implemented by stores whose purge touches storage.
type durablePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper purges expired tasks on a cron schedule.
type Sweeper struct {
	store    taskstore.Store
	schedule cron.Schedule
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a sweeper for the store. expr is a 5-field cron expression.
func New(store taskstore.Store, expr string) (*Sweeper, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return &Sweeper{store: store, schedule: sched}, nil
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop ends the sweep loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single eviction pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	switch store := s.store.(type) {
	case durablePurger:
		purged, err := store.PurgeExpired(ctx)
		if err != nil {
			logger.Slog().Error("task eviction sweep failed", "error", err)
			return
		}
		s.record(int(purged))
	case memoryPurger:
		s.record(store.PurgeExpired())
	}
}

func (s *Sweeper) record(purged int) {
	if purged == 0 {
		return
	}
	metrics.RecordEviction(purged)
	logger.Slog().Info("evicted expired tasks", "count", purged)
}
