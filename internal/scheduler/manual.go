package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// Manual — планировщик с виртуальными часами для тестов. Callbacks
// срабатывают только при явном продвижении времени через Advance,
// поэтому тесты таймингов детерминированы и не спят реальное время.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int64
	pending []*manualEntry
}

type manualEntry struct {
	id       int64
	fireAt   time.Time
	fn       func()
	canceled bool
}

// NewManual создаёт планировщик с начальным временем start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// After регистрирует fn на момент now+delay. Просроченный delay (<= 0)
// не выполняется синхронно — callback сработает при ближайшем Advance,
// как и у реального планировщика, где callback всегда асинхронен.
func (m *Manual) After(delay time.Duration, fn func()) domain.CancelTransition {
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	entry := &manualEntry{
		id:     m.nextID,
		fireAt: m.now.Add(delay),
		fn:     fn,
	}
	m.nextID++
	m.pending = append(m.pending, entry)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entry.canceled = true
	}
}

// Now возвращает виртуальное время.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance продвигает часы на d и выполняет все созревшие callbacks в порядке
// срабатывания. Callback может планировать новые переходы: цепочка,
// укладывающаяся в продвинутый интервал, доигрывается целиком.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		entry := m.popDue(target)
		if entry == nil {
			break
		}
		entry.fn()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// PendingCount возвращает число незавершённых (не отменённых) callbacks.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, entry := range m.pending {
		if !entry.canceled {
			count++
		}
	}
	return count
}

// popDue снимает самый ранний callback со сроком не позже target,
// продвигая часы до его момента срабатывания.
func (m *Manual) popDue(target time.Time) *manualEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.pending, func(i, j int) bool {
		if !m.pending[i].fireAt.Equal(m.pending[j].fireAt) {
			return m.pending[i].fireAt.Before(m.pending[j].fireAt)
		}
		return m.pending[i].id < m.pending[j].id
	})

	for idx, entry := range m.pending {
		if entry.canceled {
			continue
		}
		if entry.fireAt.After(target) {
			return nil
		}
		m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
		if entry.fireAt.After(m.now) {
			m.now = entry.fireAt
		}
		return entry
	}
	return nil
}

var _ domain.TransitionScheduler = (*Manual)(nil)
