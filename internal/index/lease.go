package index

import (
	"context"
	"sync"
)

// Lease is a keyed mutex: at most one holder per key, independent keys do not
// block each other. Entries are reference counted and dropped when idle.
type Lease struct {
	mu      sync.Mutex
	entries map[string]*leaseEntry
}

type leaseEntry struct {
	slot chan struct{}
	refs int
}

// NewLease creates an empty lease table.
func NewLease() *Lease {
	return &Lease{entries: make(map[string]*leaseEntry)}
}

// Acquire blocks until key is free or ctx is done. The returned release func
// is idempotent.
func (l *Lease) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &leaseEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.unref(key, e)
		})
	}, nil
}

func (l *Lease) unref(key string, e *leaseEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (l *Lease) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
