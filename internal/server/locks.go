package server

import "sync"

// Locks hands out one mutex per output directory. Write operations on
// the same directory hold it across the manifest load and save.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewLocks creates an empty lock set.
func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// For returns the mutex for root, creating it on first use.
func (l *Locks) For(root string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	mu, ok := l.m[root]
	if !ok {
		mu = &sync.Mutex{}
		l.m[root] = mu
	}

	return mu
}
