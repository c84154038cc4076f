package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/domain"
)

// Режимы запуска Runner'а после перехода в queued.
const (
	// DispatchSync — Runner вызывается внутри запроса (Trigger/Decide).
	DispatchSync = "sync"

	// DispatchAsync — execution остаётся в queued, Runner вызывает worker.
	DispatchAsync = "async"
)

// Акторы для журнала, когда переход делает не пользователь.
const (
	ActorWorker     = "system:worker"
	ActorEscalation = "system:escalation"
	approvedByAuto  = "auto_approve"
)

// Default configuration values.
const (
	defaultAdminRole       = "admin"
	defaultOffloadBytes    = 256 << 10
	defaultHistoryLimit    = 50
	maxHistoryLimit        = 500
	defaultEscalationBatch = 500
	resultKeyPrefix        = "executions/"
	resultKeySuffix        = "/result.json"
)

// Catalog — каталог runbook'ов (catalog.Catalog).
type Catalog interface {
	Get(name string) (*domain.Runbook, error)
	List() []domain.Runbook
}

// PolicyStore — политики одобрения (policy.Service).
type PolicyStore interface {
	Resolve(ctx context.Context, runbookName, callerRole string) (*domain.ApprovalPolicy, error)
	List(ctx context.Context, runbookName string) ([]domain.ApprovalPolicy, error)
	Create(ctx context.Context, p *domain.ApprovalPolicy) (*domain.ApprovalPolicy, error)
	Put(ctx context.Context, p *domain.ApprovalPolicy) (*domain.ApprovalPolicy, error)
}

// RateLimiter — лимит auto_approve запусков (ratelimit.Memory, repo.RateLedger).
// Allow атомарно проверяет и засчитывает запуск. Release возвращает
// последний засчитанный запуск, если execution так и не был создан.
type RateLimiter interface {
	Allow(ctx context.Context, runbookName string, cap int) (bool, error)
	Release(ctx context.Context, runbookName string) error
}

// Runner — вызов реализации runbook'а (runner.Dispatcher).
type Runner interface {
	Run(ctx context.Context, executionID uuid.UUID, name string, dryRun bool, params map[string]any) (*domain.RunResult, error)
}

// ExecutionStore — хранилище executions и журнала (repo.ExecutionRepo, memstore.ExecutionStore).
//
// Save пишет новое состояние только если версия в хранилище равна
// expectedVersion (иначе repo.ErrStaleVersion), вместе с переходами и голосом
// из change. Повторный голос того же approver'а — repo.ErrAlreadyExists.
type ExecutionStore interface {
	Create(ctx context.Context, e *domain.Execution, change domain.ExecutionChange) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	Save(ctx context.Context, e *domain.Execution, expectedVersion int, change domain.ExecutionChange) error
	MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time, tr domain.Transition) (bool, error)
	ListPending(ctx context.Context, approverRole string, limit int) ([]domain.Execution, error)
	ListQueued(ctx context.Context, before time.Time, limit int) ([]domain.Execution, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Execution, error)
	List(ctx context.Context, filter domain.ExecutionFilter) ([]domain.Execution, int, error)
	Transitions(ctx context.Context, id uuid.UUID) ([]domain.Transition, error)
	Decisions(ctx context.Context, id uuid.UUID) ([]domain.ApprovalDecision, error)
	Stats(ctx context.Context) ([]domain.ExecutionStats, error)
}

// EventPublisher — публикация событий жизненного цикла (mq.EventPublisher).
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.ExecutionEvent) error
}

// ResultStore — хранилище больших результатов Runner'а (blob.MinioStore).
type ResultStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Orchestrator — Execution Orchestrator и Approval Queue.
type Orchestrator struct {
	catalog  Catalog
	policies PolicyStore
	limiter  RateLimiter
	runner   Runner
	store    ExecutionStore

	events  EventPublisher
	results ResultStore

	clock        clock.Clock
	dispatchMode string
	adminRole    string
	offloadBytes int

	escalationBatch int

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Catalog  Catalog
	Policies PolicyStore
	Limiter  RateLimiter
	Runner   Runner
	Store    ExecutionStore

	// Events — публикация событий (опционально).
	Events EventPublisher

	// Results — object storage для больших результатов (опционально).
	Results ResultStore

	// OffloadBytes — результат больше этого размера уходит в Results (default: 256KiB).
	OffloadBytes int

	// EscalationBatch — executions за один запрос escalation sweep (default: 500).
	EscalationBatch int

	// DispatchMode — DispatchSync (default) или DispatchAsync.
	DispatchMode string

	// AdminRole — роль с доступом ко всем pending и управлению политиками (default: admin).
	AdminRole string

	Clock  clock.Clock
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	mode := cfg.DispatchMode
	if mode != DispatchAsync {
		mode = DispatchSync
	}

	adminRole := cfg.AdminRole
	if adminRole == "" {
		adminRole = defaultAdminRole
	}

	offload := cfg.OffloadBytes
	if offload <= 0 {
		offload = defaultOffloadBytes
	}

	batch := cfg.EscalationBatch
	if batch <= 0 {
		batch = defaultEscalationBatch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		catalog:      cfg.Catalog,
		policies:     cfg.Policies,
		limiter:      cfg.Limiter,
		runner:       cfg.Runner,
		store:        cfg.Store,
		events:       cfg.Events,
		results:      cfg.Results,
		clock:        clk,
		dispatchMode: mode,
		adminRole:    adminRole,
		offloadBytes: offload,

		escalationBatch: batch,

		logger: logger,
	}
}

// DispatchMode возвращает режим запуска Runner'а.
func (o *Orchestrator) DispatchMode() string {
	return o.dispatchMode
}

// AdminRole возвращает роль администратора.
func (o *Orchestrator) AdminRole() string {
	return o.adminRole
}

// publish отправляет событие. Ошибка публикации не откатывает переход:
// состояние уже записано, worker подхватит queued через polling.
func (o *Orchestrator) publish(ctx context.Context, eventType string, e *domain.Execution, tr *domain.Transition) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishEvent(ctx, domain.NewExecutionEvent(eventType, e, tr)); err != nil {
		o.logger.Warn("failed to publish event",
			"event", eventType,
			"execution_id", e.ID,
			"error", err,
		)
	}
}

// publishTransitions публикует execution.transitioned по каждому переходу.
func (o *Orchestrator) publishTransitions(ctx context.Context, e *domain.Execution, trs []domain.Transition) {
	for i := range trs {
		o.publish(ctx, domain.EventExecutionTransitioned, e, &trs[i])
	}
}

func resultKey(id uuid.UUID) string {
	return resultKeyPrefix + id.String() + resultKeySuffix
}
