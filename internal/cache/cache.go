// Package cache persists per-server notification message ids across runs so
// a restarted process edits its existing status messages instead of creating
// duplicates.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Entry is one server's recovered state, position-aligned with the
// configuration order.
type Entry struct {
	MessageID string `json:"messageId"`
}

// Load reads a prior cache. A missing or unparsable file is not an error;
// the caller just starts with no seeded ids.
func Load(path string) []Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("cache: ignoring %s: %v", path, err)
		}
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("cache: ignoring unparsable %s: %v", path, err)
		return nil
	}
	return entries
}

// Save writes the entries using a temp-file-then-rename so a crash mid-write
// never leaves a truncated cache behind.
func Save(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}
	committed = true

	return nil
}
