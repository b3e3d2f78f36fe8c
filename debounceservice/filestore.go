package debounceservice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore keeps the table as a JSON object in a single file. The file is
// read on every lookup and rewritten on every record, so several processes
// sharing the path see each other's triggers.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) ShouldSkip(_ context.Context, cameraID string, now time.Time, interval time.Duration) Check {
	table := fs.load()
	last, found := table[cameraID]
	return check(last, found, now, interval)
}

func (fs *FileStore) RecordTrigger(_ context.Context, cameraID string, now time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	table := fs.load()
	table[cameraID] = unixSeconds(now)
	return fs.save(table)
}

// load returns an empty table when the file is missing or unreadable.
func (fs *FileStore) load() map[string]float64 {
	table := make(map[string]float64)

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Msgf("Could not read debounce table %s, treating as empty: %v", fs.path, err)
		}
		return table
	}

	if err := json.Unmarshal(data, &table); err != nil {
		log.Warn().Msgf("Debounce table %s is corrupt, treating as empty: %v", fs.path, err)
		return make(map[string]float64)
	}
	return table
}

// save writes to a temp file in the same directory and renames it over the
// table so readers never observe a partial write.
func (fs *FileStore) save(table map[string]float64) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create debounce dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fs.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace debounce table: %w", err)
	}
	return nil
}
