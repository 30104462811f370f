package gateway

import "sync"

// PathLocks hands out one mutex per path and forgets it once unused
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// NewPathLocks returns an empty lock table
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns the matching unlock
func (p *PathLocks) Lock(key string) func() {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &refLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
