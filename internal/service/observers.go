package service

import "sync"

// observerList is a subscription registry. Callbacks are invoked by the
// owner, outside its own locks, in subscription order.
type observerList[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []observerEntry[F]
}

type observerEntry[F any] struct {
	id uint64
	fn F
}

// add registers fn and returns a func that removes it. The remover is
// idempotent.
func (l *observerList[F]) add(fn F) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, observerEntry[F]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.entries {
				if e.id == id {
					l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
					return
				}
			}
		})
	}
}

// snapshot returns the current callbacks in subscription order.
func (l *observerList[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]F, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}
