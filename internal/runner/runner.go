package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
)

// Request — вызов runbook'а.
type Request struct {
	ExecutionID uuid.UUID
	Runbook     string
	DryRun      bool
	Parameters  map[string]any
}

// Runbook — реализация одного runbook'а (или группы, как HTTPRunbook).
//
// ctx содержит таймаут, выставленный Dispatcher'ом.
type Runbook interface {
	Run(ctx context.Context, req Request) (*domain.RunResult, error)
}

// RunbookFunc — адаптер функции к Runbook.
type RunbookFunc func(ctx context.Context, req Request) (*domain.RunResult, error)

// Run вызывает f.
func (f RunbookFunc) Run(ctx context.Context, req Request) (*domain.RunResult, error) {
	return f(ctx, req)
}

// Registry — реестр реализаций по имени runbook'а.
type Registry struct {
	runbooks map[string]Runbook
	fallback Runbook
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{runbooks: make(map[string]Runbook)}
}

// Register добавляет реализацию для runbook'а.
func (r *Registry) Register(name string, rb Runbook) {
	r.runbooks[name] = rb
}

// SetFallback задаёт реализацию для runbook'ов без собственной регистрации
// (обычно HTTPRunbook).
func (r *Registry) SetFallback(rb Runbook) {
	r.fallback = rb
}

// Get возвращает реализацию runbook'а.
func (r *Registry) Get(name string) (Runbook, error) {
	if rb, ok := r.runbooks[name]; ok {
		return rb, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRunbook, name)
}

// Names возвращает имена зарегистрированных runbook'ов.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runbooks))
	for name := range r.runbooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
