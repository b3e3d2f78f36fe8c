package debounceservice

import (
	"context"
	"time"
)

// Check is the result of a debounce lookup. Since is only meaningful when Seen.
type Check struct {
	Skip  bool
	Seen  bool
	Since time.Duration
}

// Store persists the last trigger time of every camera.
//
// ShouldSkip never fails: an unreadable store is treated as empty so a broken
// table costs at most one duplicate alert.
type Store interface {
	ShouldSkip(ctx context.Context, cameraID string, now time.Time, interval time.Duration) Check
	RecordTrigger(ctx context.Context, cameraID string, now time.Time) error
}

// Config selects and configures the debounce backend.
type Config struct {
	Backend string `json:"backend" yaml:"backend" env:"DEBOUNCE_BACKEND"`
	Path    string `json:"path" yaml:"path" env:"DEBOUNCE_PATH"`
	DSN     string `json:"dsn" yaml:"dsn" env:"DEBOUNCE_DSN"`
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// check applies the skip rule to a looked up timestamp.
func check(last float64, found bool, now time.Time, interval time.Duration) Check {
	if !found {
		return Check{}
	}
	since := time.Duration((unixSeconds(now) - last) * float64(time.Second))
	return Check{
		Skip:  since < interval,
		Seen:  true,
		Since: since,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds converts a stored timestamp back to a time.
func FromUnixSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}
