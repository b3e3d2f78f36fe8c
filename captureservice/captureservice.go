package captureservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archiver copies a saved capture somewhere off the box.
type Archiver interface {
	Archive(ctx context.Context, name string, image []byte) error
}

// Store writes annotated captures to a directory and optionally archives them.
type Store struct {
	Dir      string
	Archiver Archiver
}

func New(dir string, archiver Archiver) *Store {
	return &Store{Dir: dir, Archiver: archiver}
}

// FileName returns the capture name for a camera at a given time,
// "<camera>-<unix seconds>.jpg".
func FileName(cameraName string, at time.Time) string {
	name := unsafeName.ReplaceAllString(cameraName, "_")
	return fmt.Sprintf("%s-%.3f.jpg", name, float64(at.UnixNano())/float64(time.Second))
}

// Save writes the image and returns its path. An archive failure is logged
// and does not fail the save.
func (s *Store) Save(ctx context.Context, cameraName string, at time.Time, image []byte) (string, error) {
	start := time.Now()
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}

	name := FileName(cameraName, at)
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, image, 0644); err != nil {
		return "", fmt.Errorf("write capture: %w", err)
	}
	log.Debug().Msgf("Saved captured and annotated image: %s in %v", path, time.Since(start))

	if s.Archiver != nil {
		if err := s.Archiver.Archive(ctx, name, image); err != nil {
			log.Error().Msgf("Failed to archive capture %s: %v", name, err)
		}
	}
	return path, nil
}
