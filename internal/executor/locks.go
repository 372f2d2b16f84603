package executor

import (
	"sync"

	"github.com/Nomadcxx/embress/internal/pathcmp"
)

// dirLocks hands out one mutex per destination directory. Entries are
// reference counted and dropped when unused.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*dirLock
}

type dirLock struct {
	mu   sync.Mutex
	refs int
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]*dirLock)}
}

// Lock blocks until dir is held and returns its unlock function.
func (d *dirLocks) Lock(dir string) func() {
	key := pathcmp.Normalize(dir)

	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &dirLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
	}
}
