package scheduler

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// Timer — продакшн-реализация TransitionScheduler поверх time.AfterFunc.
// Каждый отложенный переход живёт в собственном таймере; глобального тика нет.
type Timer struct {
	mu      sync.Mutex
	stopped bool
	timers  map[int64]*time.Timer
	nextID  int64
}

// NewTimer создаёт планировщик на системных таймерах.
func NewTimer() *Timer {
	return &Timer{timers: make(map[int64]*time.Timer)}
}

// After вызывает fn по истечении delay. Возвращаемая функция снимает
// ещё не сработавший таймер.
func (t *Timer) After(delay time.Duration, fn func()) domain.CancelTransition {
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return func() {}
	}

	id := t.nextID
	t.nextID++

	timer := time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		fn()
	})
	t.timers[id] = timer

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if timer, ok := t.timers[id]; ok {
			timer.Stop()
			delete(t.timers, id)
		}
	}
}

// Now возвращает текущее время.
func (t *Timer) Now() time.Time {
	return time.Now().UTC()
}

// Stop снимает все незавершённые таймеры. Используется при остановке сервиса:
// уже запланированные переходы будут восстановлены при следующем старте
// из сохранённых StatusEnteredAt.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

var _ domain.TransitionScheduler = (*Timer)(nil)
