package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper — проход эскалации (orchestrator.Orchestrator).
type Sweeper interface {
	EscalationSweep(ctx context.Context) (int, error)
}

// Leader — leader election (repo.LeaderLock). nil — экземпляр всегда лидер.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler запускает escalation sweep по cron-расписанию.
type Scheduler struct {
	sweeper  Sweeper
	leader   Leader
	schedule string
	timeout  time.Duration
	logger   *slog.Logger

	cron *cron.Cron

	mu       sync.Mutex
	lastRun  time.Time
	isLeader bool
}

// Config — конфигурация Scheduler.
type Config struct {
	Sweeper Sweeper
	Leader  Leader

	// Schedule — cron-выражение (default: DefaultSchedule).
	Schedule string

	// Timeout — ограничение на один проход (default: 1m).
	Timeout time.Duration

	Logger *slog.Logger
}

// New создаёт Scheduler. Некорректное расписание — ошибка.
func New(cfg Config) (*Scheduler, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := ValidateCronExpr(schedule); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		sweeper:  cfg.Sweeper,
		leader:   cfg.Leader,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Tick выполняет один проход.
//
// Не лидер — проход пропускается. Ошибки отдельных executions
// не прерывают проход, они возвращаются вместе.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			s.setLeader(false)
			return fmt.Errorf("leader election: %w", err)
		}
		s.setLeader(ok)
		if !ok {
			s.logger.Debug("not a leader, skipping tick")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	flagged, err := s.sweeper.EscalationSweep(ctx)

	s.mu.Lock()
	s.lastRun = start
	s.mu.Unlock()

	s.logger.Info("escalation sweep completed",
		"escalated", flagged,
		"duration", time.Since(start),
	)
	if err != nil {
		return fmt.Errorf("escalation sweep: %w", err)
	}
	return nil
}

// Start запускает cron. Тики не перекрываются: если проход
// ещё идёт, следующий пропускается.
func (s *Scheduler) Start(ctx context.Context) error {
	clog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule)
	return nil
}

// Stop останавливает cron, ждёт текущий проход и отдаёт лидерство.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.leader != nil {
		if err := s.leader.Release(ctx); err != nil {
			s.logger.Warn("failed to release leadership", "error", err)
		}
	}
	s.logger.Info("scheduler stopped")
}

// IsLeader — результат последних выборов.
func (s *Scheduler) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader == nil || s.isLeader
}

// LastRun — время начала последнего прохода.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) setLeader(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok != s.isLeader {
		s.logger.Info("leadership changed", "leader", ok)
	}
	s.isLeader = ok
}
