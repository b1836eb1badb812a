package game

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultAccrualInterval = 30 * time.Second

// Scheduler compounds debts once per interval of simulated time. Time only
// moves when Advance is called, so cadence does not depend on a frame rate.
type Scheduler struct {
	interval time.Duration
	ledger   *Ledger
	lenders  *Registry
	log      *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	elapsed time.Duration
	passes  int
}

func NewScheduler(interval time.Duration, ledger *Ledger, lenders *Registry, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultAccrualInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, ledger: ledger, lenders: lenders, log: logger}
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Until reports how much simulated time is left before the next pass.
func (s *Scheduler) Until() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval - s.elapsed
}

func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// Advance adds dt of simulated time and runs one pass per full interval
// crossed. It returns the number of passes run.
func (s *Scheduler) Advance(dt time.Duration) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrAccrualRunning
	}
	defer s.running.Store(false)

	if dt <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed += dt
	runs := 0
	for s.elapsed >= s.interval {
		s.elapsed -= s.interval
		if err := s.passLocked(); err != nil {
			return runs, err
		}
		runs++
	}
	return runs, nil
}

// passLocked accrues every lender with debt, in lender-id order.
func (s *Scheduler) passLocked() error {
	snap := s.ledger.Snapshot()
	changed := 0
	for _, id := range s.lenders.IDs() {
		if snap.Debts[id].IsZero() {
			continue
		}
		ok, err := s.ledger.Accrue(id)
		if err != nil {
			return err
		}
		if ok {
			changed++
		}
	}
	s.passes++
	accrualPasses.Inc()
	if changed > 0 {
		s.log.Debug("accrual pass", "pass", s.passes, "lenders_changed", changed)
	}
	return nil
}

// Run drives Advance from a wall-clock ticker until ctx is done. advance is
// called with the measured elapsed time of each tick.
func Run(ctx context.Context, tick time.Duration, advance func(time.Duration) error, logger *slog.Logger) error {
	if tick <= 0 {
		tick = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := advance(dt); err != nil {
				logger.Error("accrual tick failed", "err", err)
			}
		}
	}
}
