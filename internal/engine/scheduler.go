package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/giftly/metrics-reporter/internal/config"
	"github.com/giftly/metrics-reporter/internal/domain"
	"github.com/giftly/metrics-reporter/internal/pkg/logger"
	"github.com/giftly/metrics-reporter/internal/pkg/runlock"
)

// ErrRunInProgress is returned when another process already holds the run
// lock for the requested cadence.
var ErrRunInProgress = errors.New("a run for this cadence is already in progress")

// LockFactory yields a fresh run lock for a cadence.
type LockFactory func(cadence string) runlock.Lock

// Scheduler guards runs with a distributed per-cadence lock and fires
// scheduled runs at the configured UTC times.
type Scheduler struct {
	reporter *Reporter
	locks    LockFactory
	cfg      config.ScheduleConfig

	mu        sync.Mutex
	lastFired map[domain.Cadence]time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a scheduler over the reporter.
func NewScheduler(reporter *Reporter, locks LockFactory, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{
		reporter:  reporter,
		locks:     locks,
		cfg:       cfg,
		lastFired: make(map[domain.Cadence]time.Time),
	}
}

// RunLocked executes one run holding the cadence lock, so two triggers for
// the same cadence cannot overlap across processes. Dry runs skip the lock:
// they write nothing and may overlap freely.
func (s *Scheduler) RunLocked(ctx context.Context, req RunRequest) (*domain.RunResult, error) {
	if req.DryRun {
		return s.reporter.Run(ctx, req)
	}

	lock := s.locks(string(req.Cadence))
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("run lock release failed", "cadence", string(req.Cadence), "error", err.Error())
		}
	}()

	return s.reporter.Run(ctx, req)
}

// Start launches the schedule loop. No-op when scheduling is disabled.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.tick(ctx, now.UTC())
			}
		}
	}()
	logger.Info("report scheduler started",
		"daily_at", s.cfg.DailyAt,
		"weekly_day", s.cfg.WeeklyDay,
		"monthly_day", fmt.Sprintf("%d", s.cfg.MonthlyDay))
}

// Stop terminates the schedule loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// tick fires at most one run per due cadence per day.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if now.Format("15:04") != s.cfg.DailyAt {
		return
	}
	due := []domain.Cadence{domain.CadenceDaily}
	if strings.EqualFold(now.Weekday().String(), s.cfg.WeeklyDay) {
		due = append(due, domain.CadenceWeekly)
	}
	if now.Day() == s.cfg.MonthlyDay {
		due = append(due, domain.CadenceMonthly)
	}

	for _, cadence := range due {
		if !s.shouldFire(cadence, now) {
			continue
		}
		go func(cadence domain.Cadence) {
			if _, err := s.RunLocked(ctx, RunRequest{Cadence: cadence}); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					logger.Info("scheduled run skipped, lock held elsewhere", "cadence", string(cadence))
					return
				}
				logger.Error("scheduled run failed", "cadence", string(cadence), "error", err.Error())
			}
		}(cadence)
	}
}

func (s *Scheduler) shouldFire(cadence domain.Cadence, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastFired[cadence]; ok && now.Sub(last) < time.Hour {
		return false
	}
	s.lastFired[cadence] = now
	return true
}
