// Serializes access to a storage root, within and across processes.

package docdb

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// lockFileName is the advisory lock file created at the storage root.
const lockFileName = ".docstore.lock"

// roots holds the process-wide state of every opened storage root, keyed by
// absolute path, so two Store values on the same root share their mutexes.
var roots sync.Map

// rootState holds the in-process locks of one storage root.
//
// Lock order: table, then counter.
type rootState struct {
	mu      sync.Mutex
	tables  map[string]*sync.RWMutex
	counter sync.Mutex
}

func stateFor(root string) *rootState {
	if v, ok := roots.Load(root); ok {
		return v.(*rootState)
	}
	v, _ := roots.LoadOrStore(root, &rootState{tables: make(map[string]*sync.RWMutex)})
	return v.(*rootState)
}

// table returns the mutex guarding the named table.
func (r *rootState) table(name string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.tables[name]
	if !ok {
		m = &sync.RWMutex{}
		r.tables[name] = m
	}
	return m
}

// fileLock is an advisory lock held on a file.
type fileLock struct {
	f *os.File
}

// lockFile acquires an advisory lock on path, creating the file if needed.
func lockFile(path string, exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: path is the store lock file
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFD(f, exclusive); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to lock %s: %w", path, err), f.Close())
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) unlock() error {
	if l == nil {
		return nil
	}
	return errors.Join(unlockFD(l.f), l.f.Close())
}
