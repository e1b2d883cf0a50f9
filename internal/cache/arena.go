package cache

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog/log"
)

// Arena holds shared values by key with explicit checkout counts. A value
// nobody has checked out is kept on an idle list of at most limit entries;
// the oldest idle value is evicted when the list overflows. Eviction runs
// synchronously inside Checkin, Add or Clear.
type Arena[T any] struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*arenaEntry[T]
	idle    *list.List
	onEvict func(key string, value T)
}

type arenaEntry[T any] struct {
	key   string
	value T
	count int
	// elem is set while the entry is idle.
	elem *list.Element
}

// NewArena creates an arena keeping up to limit idle values. limit 0 evicts
// values as soon as their count drops to zero.
func NewArena[T any](limit int, onEvict func(key string, value T)) *Arena[T] {
	if limit < 0 {
		limit = 0
	}
	return &Arena[T]{
		limit:   limit,
		entries: make(map[string]*arenaEntry[T]),
		idle:    list.New(),
		onEvict: onEvict,
	}
}

// Checkout returns the value for key and increments its count.
func (a *Arena[T]) Checkout(key string) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if e.elem != nil {
		a.idle.Remove(e.elem)
		e.elem = nil
	}
	e.count++
	return e.value, true
}

// Add stores value under key, checked out once. A value already stored
// under key is evicted first.
func (a *Arena[T]) Add(key string, value T) {
	a.mu.Lock()
	var evicted []*arenaEntry[T]
	if old, ok := a.entries[key]; ok {
		a.remove(old)
		evicted = append(evicted, old)
	}
	a.entries[key] = &arenaEntry[T]{key: key, value: value, count: 1}
	a.mu.Unlock()

	a.evict(evicted)
}

// Checkin decrements the count for key. At zero the value becomes idle
// and may be evicted.
func (a *Arena[T]) Checkin(key string) {
	a.mu.Lock()
	e, ok := a.entries[key]
	if !ok || e.count == 0 {
		a.mu.Unlock()
		log.Debug().Str("key", key).Msg("Checkin of asset that is not checked out")
		return
	}
	e.count--
	var evicted []*arenaEntry[T]
	if e.count == 0 {
		e.elem = a.idle.PushBack(e)
		for a.idle.Len() > a.limit {
			oldest := a.idle.Front().Value.(*arenaEntry[T])
			a.remove(oldest)
			evicted = append(evicted, oldest)
		}
	}
	a.mu.Unlock()

	a.evict(evicted)
}

// Count returns how many times key is checked out.
func (a *Arena[T]) Count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[key]; ok {
		return e.count
	}
	return 0
}

// Len returns the number of stored values, idle or not.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Idle returns the number of values nobody has checked out.
func (a *Arena[T]) Idle() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idle.Len()
}

// Clear evicts every value regardless of its count.
func (a *Arena[T]) Clear() {
	a.mu.Lock()
	evicted := make([]*arenaEntry[T], 0, len(a.entries))
	for _, e := range a.entries {
		evicted = append(evicted, e)
	}
	a.entries = make(map[string]*arenaEntry[T])
	a.idle.Init()
	a.mu.Unlock()

	a.evict(evicted)
}

func (a *Arena[T]) remove(e *arenaEntry[T]) {
	if e.elem != nil {
		a.idle.Remove(e.elem)
		e.elem = nil
	}
	delete(a.entries, e.key)
}

func (a *Arena[T]) evict(entries []*arenaEntry[T]) {
	for _, e := range entries {
		log.Debug().Str("key", e.key).Int("count", e.count).Msg("Evicting asset")
		if a.onEvict != nil {
			a.onEvict(e.key, e.value)
		}
	}
}
