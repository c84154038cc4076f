package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
	defaultMaxAttempts  = 3
	defaultBaseBackoff  = 500 * time.Millisecond
	defaultMaxBackoff   = 10 * time.Second
)

// Dispatcher — запуск queued execution'а (orchestrator.Orchestrator).
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
}

// QueuedLister — выборка queued executions для polling (repo.ExecutionRepo, memstore).
type QueuedLister interface {
	ListQueued(ctx context.Context, before time.Time, limit int) ([]domain.Execution, error)
}

// Worker запускает одобренные executions в async режиме.
//
// Worker — stateless компонент, который:
//   - Получает execution.queued из RabbitMQ (event-driven)
//   - Периодически проверяет queued executions в БД (polling fallback)
//   - Вызывает Dispatch; взаимное исключение обеспечивает переход
//     queued → executing в оркестраторе
//
// Workers масштабируются горизонтально: один execution запустит
// только тот, чей переход записался первым, остальные получат stale.
type Worker struct {
	dispatcher Dispatcher
	queued     QueuedLister
	conn       *mq.Connection
	clock      clock.Clock

	// Consumer
	consumer *mq.Consumer
	prefetch int

	// Configuration
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseBackoff  time.Duration
	maxBackoff   time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Dispatcher Dispatcher
	Queued     QueuedLister

	// Conn — соединение с RabbitMQ. nil — только polling.
	Conn *mq.Connection

	Clock clock.Clock

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // executions за один poll (default: 50)
	Prefetch     int           // QoS consumer'а (default: 5)

	// Retry для временных ошибок dispatch
	MaxAttempts int           // default: 3
	BaseBackoff time.Duration // default: 500ms
	MaxBackoff  time.Duration // default: 10s

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		dispatcher:   cfg.Dispatcher,
		queued:       cfg.Queued,
		conn:         cfg.Conn,
		clock:        cfg.Clock,
		prefetch:     cfg.Prefetch,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		baseBackoff:  cfg.BaseBackoff,
		maxBackoff:   cfg.MaxBackoff,
		logger:       cfg.Logger,
	}

	if w.clock == nil {
		w.clock = clock.Real{}
	}
	if w.prefetch <= 0 {
		w.prefetch = defaultPrefetch
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.baseBackoff <= 0 {
		w.baseBackoff = defaultBaseBackoff
	}
	if w.maxBackoff <= 0 {
		w.maxBackoff = defaultMaxBackoff
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для executions.queued (если есть соединение)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"broker", w.conn != nil,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueExecutionsQueued,
			Handler:  w.handleExecutionQueued,
			Prefetch: w.prefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("execution consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения горутин.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем executions, одобренные пока worker был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
//
// При живом брокере берутся только executions старше pollInterval:
// свежие приходят через очередь.
func (w *Worker) poll(ctx context.Context) {
	before := w.clock.Now()
	if w.conn != nil && w.conn.IsConnected() {
		before = before.Add(-w.pollInterval)
	}

	list, err := w.queued.ListQueued(ctx, before, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list queued executions", "error", err)
		return
	}
	if len(list) == 0 {
		return
	}

	w.logger.Debug("poll found queued executions", "count", len(list))

	for i := range list {
		if ctx.Err() != nil {
			return
		}
		if err := w.process(ctx, list[i].ID); err != nil && !errors.Is(err, mq.ErrDiscard) {
			w.logger.Error("failed to dispatch execution from poll",
				"execution_id", list[i].ID,
				"error", err,
			)
		}
	}
}
