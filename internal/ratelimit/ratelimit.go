// Package ratelimit — лимит auto_approve запусков на runbook.
//
// Окно скользящее: считаются запуски за последние 24 часа от текущего
// момента, а не за календарный день.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Runbooks/internal/clock"
)

// Window — длина скользящего окна.
const Window = 24 * time.Hour

// Memory — sliding window в памяти процесса.
//
// Для каждого runbook'а хранится список отметок времени и свой мьютекс:
// проверка и запись отметки выполняются под одной блокировкой.
// Подходит для single-node режима, в кластере используется repo.RateLedger.
type Memory struct {
	clock  clock.Clock
	window time.Duration

	mu       sync.Mutex
	runbooks map[string]*bucket
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewMemory создаёт Memory. clk == nil — системные часы.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory{
		clock:    clk,
		window:   Window,
		runbooks: make(map[string]*bucket),
	}
}

// Allow атомарно проверяет лимит и, если он не исчерпан, засчитывает запуск.
// cap <= 0 — автозапуск запрещён, всегда false.
func (m *Memory) Allow(_ context.Context, runbookName string, cap int) (bool, error) {
	if cap <= 0 {
		return false, nil
	}

	b := m.bucket(runbookName)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := m.clock.Now()
	b.prune(now.Add(-m.window))

	if len(b.stamps) >= cap {
		return false, nil
	}
	b.stamps = append(b.stamps, now)
	return true, nil
}

// Release снимает последнюю отметку runbook'а. Пустое окно — no-op.
func (m *Memory) Release(_ context.Context, runbookName string) error {
	b := m.bucket(runbookName)
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.stamps); n > 0 {
		b.stamps = b.stamps[:n-1]
	}
	return nil
}

// Count возвращает число запусков в текущем окне.
func (m *Memory) Count(_ context.Context, runbookName string) (int, error) {
	b := m.bucket(runbookName)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(m.clock.Now().Add(-m.window))
	return len(b.stamps), nil
}

func (m *Memory) bucket(runbookName string) *bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.runbooks[runbookName]
	if !ok {
		b = &bucket{}
		m.runbooks[runbookName] = b
	}
	return b
}

// prune удаляет отметки не новее cutoff. Отметки отсортированы по времени.
func (b *bucket) prune(cutoff time.Time) {
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}
