package locker

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// Process — in-process реализация OrderLocker на keyed-мьютексах.
// Достаточна, пока сервис работает в одном экземпляре.
type Process struct {
	mu    sync.Mutex
	locks map[string]*processLock
}

type processLock struct {
	mu   sync.Mutex
	refs int
}

// NewProcess создаёт in-process locker.
func NewProcess() *Process {
	return &Process{locks: make(map[string]*processLock)}
}

// Lock захватывает мьютекс заказа. Освобождение возвращается вызывающему;
// запись о мьютексе удаляется, когда им никто не пользуется.
func (p *Process) Lock(_ context.Context, orderID string) (func(), error) {
	p.mu.Lock()
	entry, ok := p.locks[orderID]
	if !ok {
		entry = &processLock{}
		p.locks[orderID] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			entry.mu.Unlock()

			p.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(p.locks, orderID)
			}
			p.mu.Unlock()
		})
	}
	return release, nil
}

var _ domain.OrderLocker = (*Process)(nil)
