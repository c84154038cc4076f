// Package clock — источник текущего времени.
//
// Компоненты получают Clock через Config, чтобы в тестах время
// можно было двигать вручную (Fake).
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real — системные часы (UTC).
type Real struct{}

// Now возвращает time.Now() в UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake — часы для тестов, время меняется только через Set/Advance.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake создаёт Fake, стоящие на start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now возвращает текущее время Fake.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance сдвигает время вперёд на d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set устанавливает время.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
