// Persists the per-table auto-increment counters shared by a storage root.

package docdb

import (
	"fmt"
	"os"
	"sync"

	dberrors "github.com/maruel/docstore/internal/errors"
)

// counterFileName is the counter file at the storage root. "increment" is
// therefore a reserved table name.
const counterFileName = "increment.json"

// counterStore reads and writes the shared counter file.
//
// Each call is a full read-modify-write cycle guarded by mu; the caller holds
// the cross-process lock when one is used.
type counterStore struct {
	path string
	mu   *sync.Mutex
}

// load returns the counters, or an empty map when the file does not exist yet.
func (c *counterStore) load() (map[string]int64, error) {
	var m map[string]int64
	if err := readJSON(c.path, &m); err != nil {
		if os.IsNotExist(err) {
			return map[string]int64{}, nil
		}
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	if m == nil {
		m = map[string]int64{}
	}
	return m, nil
}

// all returns a copy of every counter.
func (c *counterStore) all() (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// get returns the last issued value for table.
func (c *counterStore) get(table string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.load()
	if err != nil {
		return 0, false, err
	}
	v, ok := m[table]
	return v, ok, nil
}

// next issues the next value for table and persists it before returning.
func (c *counterStore) next(table string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.load()
	if err != nil {
		return 0, err
	}
	m[table]++
	if err := writeJSON(c.path, m); err != nil {
		return 0, fmt.Errorf("failed to write counters: %w", err)
	}
	return m[table], nil
}

// raise moves the counter of table forward to v. The table must already have
// issued a value and v must not be lower than the current one.
func (c *counterStore) raise(table string, v int64) (changed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.load()
	if err != nil {
		return false, err
	}
	cur, ok := m[table]
	if !ok {
		return false, dberrors.KeyNotFound(counterFileName, table)
	}
	if v < cur {
		return false, dberrors.Validation("counter of table %q is %d, it cannot decrease to %d", table, cur, v).
			WithDetails(map[string]any{"table": table, "current": cur, "value": v})
	}
	if v == cur {
		return false, nil
	}
	m[table] = v
	if err := writeJSON(c.path, m); err != nil {
		return false, fmt.Errorf("failed to write counters: %w", err)
	}
	return true, nil
}
