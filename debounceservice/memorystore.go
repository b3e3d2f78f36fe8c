package debounceservice

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the table in process memory. History is lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	table map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{table: make(map[string]float64)}
}

func (ms *MemoryStore) ShouldSkip(_ context.Context, cameraID string, now time.Time, interval time.Duration) Check {
	ms.mu.Lock()
	last, found := ms.table[cameraID]
	ms.mu.Unlock()
	return check(last, found, now, interval)
}

func (ms *MemoryStore) RecordTrigger(_ context.Context, cameraID string, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.table[cameraID] = unixSeconds(now)
	return nil
}

// Snapshot returns a copy of the table.
func (ms *MemoryStore) Snapshot() map[string]float64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make(map[string]float64, len(ms.table))
	for k, v := range ms.table {
		out[k] = v
	}
	return out
}
