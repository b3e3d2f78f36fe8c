package triggerservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bigjimnolan/sssaitrigger/debounceservice"
	"github.com/bigjimnolan/sssaitrigger/detectionservice"
	"github.com/bigjimnolan/sssaitrigger/metricsservice"
	"github.com/bigjimnolan/sssaitrigger/notifyservice"
)

// Orchestrator runs one trigger event per call to Handle. Captures, Notifier
// and Metrics may be nil.
type Orchestrator struct {
	Cameras    map[string]Camera
	Store      debounceservice.Store
	Snapshots  SnapshotFetcher
	Detector   Detector
	Classifier detectionservice.Classifier
	Webhooks   Webhooks
	Annotator  Annotator
	Captures   CaptureSink
	Notifier   Notifier
	Metrics    *metricsservice.Metrics

	Interval         time.Duration
	DetectionTimeout time.Duration
	Now              func() time.Time

	locks sync.Map
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// lock serializes events for one camera so the debounce check and record
// cannot interleave inside this process.
func (o *Orchestrator) lock(cameraID string) func() {
	mu, _ := o.locks.LoadOrStore(cameraID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Handle takes a camera trigger through debounce, snapshot, detection and,
// on a match, the webhook/record/annotate/notify sequence.
func (o *Orchestrator) Handle(ctx context.Context, cameraID string) Outcome {
	out := o.handle(ctx, cameraID)
	o.Metrics.Outcome(cameraID, out.Kind.String())
	return out
}

func (o *Orchestrator) handle(ctx context.Context, cameraID string) Outcome {
	eventID := uuid.NewString()
	logger := log.With().Str("camera", cameraID).Str("event", eventID).Logger()

	cam, ok := o.Cameras[cameraID]
	if !ok {
		logger.Warn().Msgf("Trigger for unknown camera %s", cameraID)
		return Outcome{
			Kind:     KindFailed,
			EventID:  eventID,
			CameraID: cameraID,
			Message:  fmt.Sprintf("Unknown camera %s", cameraID),
			Err:      fmt.Errorf("%w: %s", ErrUnknownCamera, cameraID),
		}
	}

	unlock := o.lock(cameraID)
	defer unlock()

	start := o.now()
	out := Outcome{EventID: eventID, CameraID: cameraID, CameraName: cam.Name}
	done := func(kind Kind, msg string, err error) Outcome {
		out.Kind = kind
		out.Message = msg
		out.Err = err
		out.Elapsed = o.now().Sub(start)
		return out
	}

	check := o.Store.ShouldSkip(ctx, cameraID, start, o.Interval)
	if check.Seen {
		logger.Info().Msgf("Found last time for %s was %s", cam.Name, start.Add(-check.Since).Format(time.DateTime))
	} else {
		logger.Info().Msgf("No last camera time for %s", cam.Name)
	}
	if check.Skip {
		msg := fmt.Sprintf("Skipping detection on %s since it was only triggered %.1fs ago", cam.Name, check.Since.Seconds())
		logger.Info().Msg(msg)
		return done(KindSkipped, msg, nil)
	}
	if check.Seen {
		logger.Info().Msgf("Processing event on %s (last trigger was %.1fs ago)", cam.Name, check.Since.Seconds())
	}

	snapshot, err := o.Snapshots.FetchSnapshot(ctx, cameraID)
	if err != nil {
		logger.Error().Msgf("Snapshot for %s failed: %v", cam.Name, err)
		return done(KindFailed, fmt.Sprintf("Error fetching snapshot for %s: %v", cam.Name, err), fmt.Errorf("%w: %w", ErrSnapshot, err))
	}

	predictions, err := o.detect(ctx, logger, snapshot)
	if err != nil {
		logger.Error().Msgf("Detection for %s failed: %v", cam.Name, err)
		return done(KindFailed, fmt.Sprintf("Error calling Deepstack: %v", err), fmt.Errorf("%w: %w", ErrDetection, err))
	}

	verdict := o.Classifier.Classify(predictions, cam.IgnoreAreas)
	out.Verdict = &verdict
	if !verdict.Triggered {
		msg := fmt.Sprintf("%s triggered - nothing found", cam.Name)
		logger.Info().Msgf("%s - took %.1f seconds", msg, o.now().Sub(start).Seconds())
		return done(KindNoMatch, msg, nil)
	}

	// Once matched the sequence runs to completion even if the caller goes away.
	sideCtx := context.WithoutCancel(ctx)
	err = o.sideEffects(sideCtx, logger, cam, snapshot, predictions, &out)
	msg := fmt.Sprintf("Triggering camera because something was found - took %.1f seconds", o.now().Sub(start).Seconds())
	return done(KindTriggered, msg, err)
}

func (o *Orchestrator) detect(ctx context.Context, logger zerolog.Logger, snapshot []byte) ([]detectionservice.Prediction, error) {
	if o.DetectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.DetectionTimeout)
		defer cancel()
	}

	logger.Info().Msg("Requesting detection from DeepStack...")
	s := time.Now()
	predictions, err := o.Detector.Detect(ctx, snapshot)
	took := time.Since(s)
	o.Metrics.DetectionLatency(took)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %v: %w", o.DetectionTimeout, err)
		}
		return nil, err
	}
	logger.Debug().Msgf("Got %d predictions. Time: %v", len(predictions), took)
	return predictions, nil
}

func (o *Orchestrator) sideEffects(ctx context.Context, logger zerolog.Logger, cam Camera, snapshot []byte, predictions []detectionservice.Prediction, out *Outcome) error {
	match := out.Verdict.Match

	if cam.TriggerURL != "" {
		logger.Info().Msgf("%d%% sure we found a %s - triggering %s via request to the camera's webhook...",
			detectionservice.ConfidencePercent(match.Confidence), match.Label, cam.Name)
		if err := o.Webhooks.TriggerCamera(ctx, cam.TriggerURL); err != nil {
			logger.Error().Msgf("Camera webhook for %s failed: %v", cam.Name, err)
			o.Metrics.SideEffectFailed("camera_webhook")
		}
	}

	recorded := o.now()
	if err := o.Store.RecordTrigger(ctx, cam.ID, recorded); err != nil {
		logger.Error().Msgf("Could not save last trigger time for %s: %v", cam.Name, err)
		o.Metrics.SideEffectFailed("debounce_record")
	} else {
		logger.Debug().Msgf("Saving last camera time for %s as %d", cam.ID, recorded.Unix())
	}

	if cam.HomekitAccessoryID != "" && o.Webhooks.HasHomebridge() {
		if err := o.Webhooks.SetAccessoryState(ctx, cam.HomekitAccessoryID, true); err != nil {
			logger.Error().Msgf("HomeBridge webhook for %s failed: %v", cam.HomekitAccessoryID, err)
			o.Metrics.SideEffectFailed("homebridge")
		} else {
			logger.Debug().Msgf("Sent message to homebridge webhook for %s", cam.HomekitAccessoryID)
		}
	} else {
		logger.Debug().Msg("Skipping HomeBridge Webhook since no webhookUrl or accessory Id")
	}

	attachment := snapshot
	annotated, err := o.Annotator.Annotate(snapshot, predictions, cam.IgnoreAreas)
	if err != nil {
		logger.Error().Msgf("Annotating snapshot for %s failed, sending raw snapshot: %v", cam.Name, err)
		o.Metrics.SideEffectFailed("annotate")
	} else {
		attachment = annotated
		if o.Captures != nil {
			path, err := o.Captures.Save(ctx, cam.Name, recorded, annotated)
			if err != nil {
				logger.Error().Msgf("Saving capture for %s failed: %v", cam.Name, err)
				o.Metrics.SideEffectFailed("capture")
			}
			out.CapturePath = path
		}
	}

	if o.Notifier == nil {
		logger.Debug().Msg("No notifier configured, skipping push notification")
		return nil
	}
	n := notifyservice.Notification{
		Title:          fmt.Sprintf("Motion Detected on %s", cam.Name),
		Message:        fmt.Sprintf("Found object(s) on camera %s:\n\n%s", cam.Name, strings.Join(out.Verdict.Findings, "\n")),
		Attachment:     attachment,
		AttachmentName: fmt.Sprintf("%s.jpg", cam.Name),
	}
	logger.Debug().Msgf("Sending pushover message: %s", n.Message)
	if err := o.Notifier.Notify(ctx, n); err != nil {
		logger.Error().Msgf("Push notification for %s failed: %v", cam.Name, err)
		o.Metrics.SideEffectFailed("notify")
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	return nil
}
