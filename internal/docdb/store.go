package docdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/maruel/ksid"

	dberrors "github.com/maruel/docstore/internal/errors"
)

const (
	documentSuffix = ".json"
	rulesSuffix    = "-rules"
)

// Committer records the files touched by a successful mutation.
//
// Paths are relative to the storage root. *history.Repo implements it.
type Committer interface {
	Commit(msg string, files ...string) error
}

// Options configures a Store.
type Options struct {
	// Logger receives mutation alerts and diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Alerts logs every mutation at Info level instead of Debug.
	Alerts bool
	// NoFileLock disables the advisory lock file shared with other processes.
	NoFileLock bool
	// Committer, when set, is called after every successful mutation.
	Committer Committer
}

// Store is a collection of tables persisted as JSON files in one directory.
//
// Every operation re-reads the files it needs; nothing is cached between
// calls. Each read-modify-write cycle is atomic with respect to other
// goroutines and, unless disabled, other processes using the same root.
type Store struct {
	root     string
	opts     Options
	log      *slog.Logger
	state    *rootState
	counters *counterStore
}

// Open returns a Store for the tables in root.
//
// The directory is not created; operations fail with DIRECTORY_NOT_FOUND
// while it does not exist.
func Open(root string, opts *Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	s := &Store{root: abs, state: stateFor(abs)}
	if opts != nil {
		s.opts = *opts
	}
	s.log = s.opts.Logger
	if s.log == nil {
		s.log = slog.Default()
	}
	s.counters = &counterStore{path: filepath.Join(abs, counterFileName), mu: &s.state.counter}
	return s, nil
}

// Root returns the absolute path of the storage root.
func (s *Store) Root() string {
	return s.root
}

// CreateTable creates an empty table, replacing any existing one.
//
// With non-empty rules the table is strict: the rules are persisted next to
// the document and every later write is validated against them. Otherwise
// the table is unrestricted and any previous rules file is deleted.
func (s *Store) CreateTable(name string, rules Rules) error {
	if len(rules) > 0 {
		if err := rules.check(); err != nil {
			return err
		}
	}
	release, err := s.begin(name, true)
	if err != nil {
		return err
	}
	defer release()

	if err := writeJSON(s.documentPath(name), map[string]any{}); err != nil {
		return dberrors.Storage(fmt.Sprintf("failed to create table %q", name), err)
	}
	if len(rules) > 0 {
		if err := writeJSON(s.rulesPath(name), rules); err != nil {
			return dberrors.Storage(fmt.Sprintf("failed to write rules of table %q", name), err)
		}
	} else if err := removeFile(s.rulesPath(name)); err != nil {
		return dberrors.Storage(fmt.Sprintf("failed to remove rules of table %q", name), err)
	}
	s.alert("created table", "table", name, "strict", len(rules) > 0, "rules", rules)
	return s.commit("create "+name, name+documentSuffix, name+rulesSuffix+documentSuffix)
}

// RemoveTable deletes a table and its rules.
//
// The table counter is kept so issued values are never reused.
func (s *Store) RemoveTable(name string) error {
	release, err := s.begin(name, true)
	if err != nil {
		return err
	}
	defer release()

	if err := os.Remove(s.documentPath(name)); err != nil {
		if os.IsNotExist(err) {
			return dberrors.TableNotFound(name)
		}
		return dberrors.Storage(fmt.Sprintf("failed to remove table %q", name), err)
	}
	if err := removeFile(s.rulesPath(name)); err != nil {
		return dberrors.Storage(fmt.Sprintf("failed to remove rules of table %q", name), err)
	}
	s.alert("deleted table", "table", name)
	return s.commit("drop "+name, name+documentSuffix, name+rulesSuffix+documentSuffix)
}

// Tables returns the names of all tables in sorted order.
func (s *Store) Tables() ([]string, error) {
	if err := s.checkDir(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, dberrors.Storage("failed to list tables", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), documentSuffix)
		if !ok || validateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Rules returns the rules of a table, or nil if the table is unrestricted.
func (s *Store) Rules(table string) (Rules, error) {
	release, err := s.begin(table, false)
	if err != nil {
		return nil, err
	}
	defer release()
	_, rules, err := s.load(table)
	return rules, err
}

// Write stores value under key and returns the stored value.
//
// In strict mode value must be an object matching the table rules.
// [AutoIncrement] placeholders, either as the value itself or as a field of
// an object value, are replaced by the next table counter.
func (s *Store) Write(table, key string, value any) (any, error) {
	v, err := normalize(value)
	if err != nil {
		return nil, dberrors.TypeMismatch("%v", err)
	}
	release, err := s.begin(table, true)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, rules, err := s.load(table)
	if err != nil {
		return nil, err
	}
	if rules != nil {
		if err := rules.Validate(v); err != nil {
			return nil, err
		}
	}
	v, consumed, err := s.resolve(table, v)
	if err != nil {
		return nil, err
	}
	doc[key] = v
	if err := s.save(table, doc); err != nil {
		return nil, err
	}
	s.alert("added a line", "table", table, "key", key, "value", describe(v))
	files := []string{table + documentSuffix}
	if consumed > 0 {
		files = append(files, counterFileName)
	}
	if err := s.commit(fmt.Sprintf("write %s/%s", table, key), files...); err != nil {
		return nil, err
	}
	return v, nil
}

// Append stores value under a new time-sortable key and returns the key and
// the stored value.
func (s *Store) Append(table string, value any) (string, any, error) {
	key := ksid.NewID().String()
	v, err := s.Write(table, key, value)
	if err != nil {
		return "", nil, err
	}
	return key, v, nil
}

// Read returns the value stored under key.
//
// The boolean is false when the key is not set or holds null. Falsy values
// such as 0, false or "" are present.
func (s *Store) Read(table, key string) (any, bool, error) {
	release, err := s.begin(table, false)
	if err != nil {
		return nil, false, err
	}
	defer release()

	doc, err := s.loadDocument(table)
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// ReadInto decodes the value stored under key into dst.
func (s *Store) ReadInto(table, key string, dst any) (bool, error) {
	v, ok, err := s.Read(table, key)
	if err != nil || !ok {
		return false, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s/%s: %w", table, key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, dberrors.TypeMismatch("failed to decode %s/%s: %v", table, key, err)
	}
	return true, nil
}

// Check reports whether key is set.
func (s *Store) Check(table, key string) (bool, error) {
	_, ok, err := s.Read(table, key)
	return ok, err
}

// Keys returns the keys of a table in sorted order.
func (s *Store) Keys(table string) ([]string, error) {
	release, err := s.begin(table, false)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.loadDocument(table)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k, v := range doc {
		if v != nil {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Edit replaces the whole value stored under key.
//
// Strict tables only accept field edits, see [Store.EditField].
func (s *Store) Edit(table, key string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return dberrors.TypeMismatch("%v", err)
	}
	release, err := s.begin(table, true)
	if err != nil {
		return err
	}
	defer release()

	doc, rules, err := s.load(table)
	if err != nil {
		return err
	}
	if cur, ok := doc[key]; !ok || cur == nil {
		return dberrors.KeyNotFound(table, key)
	}
	if rules != nil {
		return dberrors.Validation("cannot replace the whole value of %q in strict mode, edit a field instead", key).
			WithDetails(map[string]any{"table": table, "key": key})
	}
	doc[key] = v
	if err := s.save(table, doc); err != nil {
		return err
	}
	s.alert("edited a line", "table", table, "key", key, "value", describe(v))
	return s.commit(fmt.Sprintf("edit %s/%s", table, key), table+documentSuffix)
}

// EditField sets one field of the object stored under key.
//
// In strict mode the field must be declared, must not be AUTO_INCREMENT and
// value must match the declared kind.
func (s *Store) EditField(table, key, field string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return dberrors.TypeMismatch("%v", err)
	}
	release, err := s.begin(table, true)
	if err != nil {
		return err
	}
	defer release()

	doc, rules, err := s.load(table)
	if err != nil {
		return err
	}
	cur, ok := doc[key]
	if !ok || cur == nil {
		return dberrors.KeyNotFound(table, key)
	}
	obj, ok := cur.(map[string]any)
	if !ok {
		return dberrors.TypeMismatch("value of %q is %s, not an OBJECT", key, describe(cur)).
			WithDetails(map[string]any{"table": table, "key": key})
	}
	if rules != nil {
		if err := rules.ValidateField(field, v); err != nil {
			return err
		}
	}
	obj[field] = v
	if err := s.save(table, doc); err != nil {
		return err
	}
	s.alert("edited a line", "table", table, "key", key, "field", field, "value", describe(v))
	return s.commit(fmt.Sprintf("edit %s/%s.%s", table, key, field), table+documentSuffix)
}

// Remove deletes key from a table.
func (s *Store) Remove(table, key string) error {
	release, err := s.begin(table, true)
	if err != nil {
		return err
	}
	defer release()

	doc, err := s.loadDocument(table)
	if err != nil {
		return err
	}
	old, ok := doc[key]
	if !ok || old == nil {
		return dberrors.KeyNotFound(table, key)
	}
	delete(doc, key)
	if err := s.save(table, doc); err != nil {
		return err
	}
	s.alert("removed a line", "table", table, "key", key, "value", describe(old))
	return s.commit(fmt.Sprintf("remove %s/%s", table, key), table+documentSuffix)
}

// Counter returns the last auto-increment value issued for table, 0 if none.
func (s *Store) Counter(table string) (int64, error) {
	if err := validateName(table); err != nil {
		return 0, err
	}
	unlock, err := s.lockRoot(false)
	if err != nil {
		return 0, err
	}
	defer unlock()
	v, _, err := s.counters.get(table)
	if err != nil {
		return 0, dberrors.Storage("failed to read counters", err)
	}
	return v, nil
}

// Counters returns the last auto-increment value issued for every table.
func (s *Store) Counters() (map[string]int64, error) {
	unlock, err := s.lockRoot(false)
	if err != nil {
		return nil, err
	}
	defer unlock()
	m, err := s.counters.all()
	if err != nil {
		return nil, dberrors.Storage("failed to read counters", err)
	}
	return m, nil
}

// SetCounter moves the counter of table forward to value.
//
// The table must have issued at least one value and the counter never
// decreases; setting the current value is a no-op.
func (s *Store) SetCounter(table string, value int64) error {
	if err := validateName(table); err != nil {
		return err
	}
	if value < 1 {
		return dberrors.Validation("counter value must be greater than 0, got %d", value)
	}
	unlock, err := s.lockRoot(true)
	if err != nil {
		return err
	}
	defer unlock()
	changed, err := s.counters.raise(table, value)
	if err != nil {
		if dberrors.CodeOf(err) != "" {
			return err
		}
		return dberrors.Storage("failed to update counters", err)
	}
	if !changed {
		s.log.Debug("counter unchanged", "table", table, "value", value)
		return nil
	}
	s.alert("set counter", "table", table, "value", value)
	return s.commit(fmt.Sprintf("set counter %s=%d", table, value), counterFileName)
}

// begin validates the table name and storage root, then takes the table and
// root locks. The returned function releases them.
func (s *Store) begin(table string, exclusive bool) (func(), error) {
	if err := validateName(table); err != nil {
		return nil, err
	}
	m := s.state.table(table)
	if exclusive {
		m.Lock()
	} else {
		m.RLock()
	}
	unlockMu := m.Unlock
	if !exclusive {
		unlockMu = m.RUnlock
	}
	unlock, err := s.lockRoot(exclusive)
	if err != nil {
		unlockMu()
		return nil, err
	}
	return func() {
		unlock()
		unlockMu()
	}, nil
}

// lockRoot checks the storage root and takes the cross-process lock.
func (s *Store) lockRoot(exclusive bool) (func(), error) {
	if err := s.checkDir(); err != nil {
		return nil, err
	}
	if s.opts.NoFileLock {
		return func() {}, nil
	}
	l, err := lockFile(filepath.Join(s.root, lockFileName), exclusive)
	if err != nil {
		return nil, dberrors.Storage("failed to lock storage root", err)
	}
	return func() {
		if err := l.unlock(); err != nil {
			s.log.Warn("failed to release lock", "root", s.root, "err", err)
		}
	}, nil
}

func (s *Store) checkDir() error {
	fi, err := os.Stat(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return dberrors.DirectoryNotFound(s.root)
		}
		return dberrors.Storage("failed to access storage root", err)
	}
	if !fi.IsDir() {
		return dberrors.DirectoryNotFound(s.root)
	}
	return nil
}

func (s *Store) documentPath(table string) string {
	return filepath.Join(s.root, table+documentSuffix)
}

func (s *Store) rulesPath(table string) string {
	return filepath.Join(s.root, table+rulesSuffix+documentSuffix)
}

// loadDocument reads a table document.
func (s *Store) loadDocument(table string) (map[string]any, error) {
	doc, err := readDocument(s.documentPath(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberrors.TableNotFound(table)
		}
		return nil, dberrors.Storage(fmt.Sprintf("failed to read table %q", table), err)
	}
	return doc, nil
}

// load reads a table document and its rules. Rules are nil for unrestricted
// tables.
func (s *Store) load(table string) (map[string]any, Rules, error) {
	doc, err := s.loadDocument(table)
	if err != nil {
		return nil, nil, err
	}
	var rules Rules
	if err := readJSON(s.rulesPath(table), &rules); err != nil {
		if os.IsNotExist(err) {
			return doc, nil, nil
		}
		return nil, nil, dberrors.Storage(fmt.Sprintf("failed to read rules of table %q", table), err)
	}
	if len(rules) == 0 {
		return doc, nil, nil
	}
	return doc, rules, nil
}

func (s *Store) save(table string, doc map[string]any) error {
	if err := writeJSON(s.documentPath(table), doc); err != nil {
		return dberrors.Storage(fmt.Sprintf("failed to write table %q", table), err)
	}
	return nil
}

// resolve replaces [AutoIncrement] placeholders in v with the next table
// counter values. Object fields are visited in sorted order.
func (s *Store) resolve(table string, v any) (any, int, error) {
	if isPlaceholder(v) {
		n, err := s.counters.next(table)
		if err != nil {
			return nil, 0, dberrors.Storage("failed to issue auto-increment value", err)
		}
		return json.Number(strconv.FormatInt(n, 10)), 1, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return v, 0, nil
	}
	consumed := 0
	for _, field := range slices.Sorted(maps.Keys(obj)) {
		if !isPlaceholder(obj[field]) {
			continue
		}
		n, err := s.counters.next(table)
		if err != nil {
			return nil, consumed, dberrors.Storage("failed to issue auto-increment value", err)
		}
		obj[field] = json.Number(strconv.FormatInt(n, 10))
		consumed++
		s.log.Debug("resolved AUTO_INCREMENT", "table", table, "field", field, "value", n)
	}
	return obj, consumed, nil
}

func (s *Store) alert(msg string, args ...any) {
	level := slog.LevelDebug
	if s.opts.Alerts {
		level = slog.LevelInfo
	}
	s.log.Log(context.Background(), level, msg, args...)
}

func (s *Store) commit(msg string, files ...string) error {
	if s.opts.Committer == nil {
		return nil
	}
	if err := s.opts.Committer.Commit(msg, files...); err != nil {
		return dberrors.Storage("failed to record history", err)
	}
	return nil
}

// validateName checks that name can be used as a table name.
func validateName(name string) error {
	switch {
	case name == "":
		return dberrors.InvalidName(name, "name is required")
	case strings.ContainsAny(name, "/\\\x00"):
		return dberrors.InvalidName(name, "contains a path separator")
	case strings.HasPrefix(name, "."):
		return dberrors.InvalidName(name, "must not start with a dot")
	case strings.HasSuffix(name, rulesSuffix):
		return dberrors.InvalidName(name, "the -rules suffix is reserved for rules files")
	case name+documentSuffix == counterFileName:
		return dberrors.InvalidName(name, "reserved for the counter file")
	}
	return nil
}
