// Persists JSON documents: tables, rules and the counter file.

package docdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// readJSON decodes the JSON file at path into v.
//
// Numbers are decoded as json.Number so integers round-trip exactly. The
// returned error satisfies os.IsNotExist when the file is missing.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the store root and a validated table name
	if err != nil {
		return err
	}
	if err := decodeJSON(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readDocument loads a table document.
func readDocument(path string) (map[string]any, error) {
	var doc map[string]any
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// fileMode is the permission of every file written by the store.
const fileMode = 0o644

// writeJSON atomically replaces the file at path with v, tab-indented and
// without HTML escaping.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data := buf.Bytes()

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s: %w", base, err), f.Close(), os.Remove(tmpPath))
	}
	// CreateTemp creates the file with mode 0o600.
	if err := f.Chmod(fileMode); err != nil {
		return errors.Join(fmt.Errorf("failed to chmod %s: %w", base, err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close %s: %w", base, err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename %s: %w", base, err), os.Remove(tmpPath))
	}
	return nil
}

// removeFile deletes path, ignoring a missing file.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// normalize converts an arbitrary Go value into its generic JSON form:
// map[string]any, []any, string, json.Number, bool or nil.
func normalize(v any) (any, error) {
	var data []byte
	switch t := v.(type) {
	case json.RawMessage:
		data = t
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("value is not JSON serializable: %w", err)
		}
	}
	var out any
	if err := decodeJSON(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
