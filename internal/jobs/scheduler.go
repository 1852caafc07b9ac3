package jobs

import (
	"context"
	"sync"
	"time"
)

const generateEvery = time.Hour

// Scheduler drives the Runner from a ticker. Overdue nags run every tick,
// generation hourly, reminders once per local day from ReminderHour and the
// summary once on SummaryWeekday from ReminderHour.
type Scheduler struct {
	mu     sync.RWMutex
	runner *Runner
	cfg    ScheduleConfig
	cancel context.CancelFunc
	done   chan struct{}

	lastGenerate time.Time
	lastReminder string
	lastSummary  string
}

type ScheduleConfig struct {
	Interval       time.Duration
	ReminderHour   int
	SummaryWeekday time.Weekday
}

func NewScheduler(r *Runner, cfg ScheduleConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Scheduler{runner: r, cfg: cfg}
}

// Start runs a first tick immediately and then one per interval until ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs whichever jobs are due at the runner's current time.
func (s *Scheduler) Tick(ctx context.Context) {
	r := s.runner
	now := r.now()
	local := r.zone.In(now)
	day := local.Format("2006-01-02")

	if s.lastGenerate.IsZero() || now.Sub(s.lastGenerate) >= generateEvery {
		if _, err := r.Generate(ctx); err != nil {
			r.logger.Error("scheduled generate", "error", err)
		} else {
			s.lastGenerate = now
		}
	}

	if _, err := r.Overdue(ctx); err != nil {
		r.logger.Error("scheduled overdue", "error", err)
	}

	if local.Hour() < s.cfg.ReminderHour {
		return
	}
	if s.lastReminder != day {
		if _, err := r.Reminders(ctx); err != nil {
			r.logger.Error("scheduled reminders", "error", err)
		} else {
			s.lastReminder = day
		}
	}
	if local.Weekday() == s.cfg.SummaryWeekday && s.lastSummary != day {
		if _, err := r.Summary(ctx); err != nil {
			r.logger.Error("scheduled summary", "error", err)
		} else {
			s.lastSummary = day
		}
	}
}
