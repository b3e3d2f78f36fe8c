package triggerservice

import (
	"context"
	"errors"
	"time"

	"github.com/bigjimnolan/sssaitrigger/detectionservice"
	"github.com/bigjimnolan/sssaitrigger/notifyservice"
)

var (
	ErrUnknownCamera = errors.New("unknown camera")
	ErrSnapshot      = errors.New("snapshot fetch failed")
	ErrDetection     = errors.New("detection failed")
	ErrNotification  = errors.New("notification failed")
)

// Camera is the static per-camera configuration.
type Camera struct {
	ID                 string
	Name               string
	TriggerURL         string
	HomekitAccessoryID string
	IgnoreAreas        []detectionservice.Region
}

type Kind int

const (
	KindFailed Kind = iota
	KindSkipped
	KindNoMatch
	KindTriggered
)

func (k Kind) String() string {
	switch k {
	case KindSkipped:
		return "skipped"
	case KindNoMatch:
		return "no_match"
	case KindTriggered:
		return "triggered"
	default:
		return "failed"
	}
}

// Outcome is the result of one trigger event. Err is set for KindFailed and
// for a triggered event whose notification could not be delivered.
type Outcome struct {
	Kind        Kind
	EventID     string
	CameraID    string
	CameraName  string
	Message     string
	Verdict     *detectionservice.Verdict
	CapturePath string
	Elapsed     time.Duration
	Err         error
}

type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, cameraID string) ([]byte, error)
}

type Detector interface {
	Detect(ctx context.Context, image []byte) ([]detectionservice.Prediction, error)
}

type Webhooks interface {
	TriggerCamera(ctx context.Context, triggerURL string) error
	SetAccessoryState(ctx context.Context, accessoryID string, state bool) error
	HasHomebridge() bool
}

type Annotator interface {
	Annotate(src []byte, predictions []detectionservice.Prediction, ignore []detectionservice.Region) ([]byte, error)
}

type CaptureSink interface {
	Save(ctx context.Context, cameraName string, at time.Time, image []byte) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notifyservice.Notification) error
}
