package triggerservice

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigjimnolan/sssaitrigger/annotateservice"
	"github.com/bigjimnolan/sssaitrigger/captureservice"
	"github.com/bigjimnolan/sssaitrigger/debounceservice"
	"github.com/bigjimnolan/sssaitrigger/detectionservice"
	"github.com/bigjimnolan/sssaitrigger/notifyservice"
	"github.com/bigjimnolan/sssaitrigger/webhookservice"
)

// journal records the order in which collaborators are called.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.calls = append(j.calls, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeSnapshots struct {
	j     *journal
	image []byte
	err   error
}

func (f *fakeSnapshots) FetchSnapshot(_ context.Context, cameraID string) ([]byte, error) {
	f.j.add("snapshot")
	return f.image, f.err
}

type fakeDetector struct {
	j     *journal
	preds []detectionservice.Prediction
	err   error
	delay time.Duration
}

func (f *fakeDetector) Detect(ctx context.Context, _ []byte) ([]detectionservice.Prediction, error) {
	f.j.add("detect")
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.preds, f.err
}

type fakeWebhooks struct {
	j          *journal
	homebridge bool
	triggerErr error
	accErr     error
}

func (f *fakeWebhooks) TriggerCamera(_ context.Context, url string) error {
	f.j.add("trigger " + url)
	return f.triggerErr
}

func (f *fakeWebhooks) SetAccessoryState(_ context.Context, id string, state bool) error {
	f.j.add("accessory " + id)
	return f.accErr
}

func (f *fakeWebhooks) HasHomebridge() bool { return f.homebridge }

type fakeAnnotator struct {
	j   *journal
	err error
}

func (f *fakeAnnotator) Annotate(src []byte, _ []detectionservice.Prediction, _ []detectionservice.Region) ([]byte, error) {
	f.j.add("annotate")
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("annotated:"), src...), nil
}

type fakeCaptures struct{ j *journal }

func (f *fakeCaptures) Save(_ context.Context, name string, _ time.Time, _ []byte) (string, error) {
	f.j.add("save")
	return "/captures/" + name + ".jpg", nil
}

type fakeNotifier struct {
	j    *journal
	err  error
	sent []notifyservice.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n notifyservice.Notification) error {
	f.j.add("notify")
	f.sent = append(f.sent, n)
	return f.err
}

type journalStore struct {
	*debounceservice.MemoryStore
	j *journal
}

func (s journalStore) RecordTrigger(ctx context.Context, id string, now time.Time) error {
	s.j.add("record")
	return s.MemoryStore.RecordTrigger(ctx, id, now)
}

type fixture struct {
	o        *Orchestrator
	j        *journal
	store    *debounceservice.MemoryStore
	detector *fakeDetector
	hooks    *fakeWebhooks
	notifier *fakeNotifier
	clock    *time.Time
}

var person = detectionservice.Prediction{Label: "person", Confidence: 0.95, XMin: 10, YMin: 10, XMax: 60, YMax: 60}

func newFixture(preds ...detectionservice.Prediction) *fixture {
	j := &journal{}
	store := debounceservice.NewMemoryStore()
	clock := time.Unix(1_700_000_000, 0)
	f := &fixture{
		j:        j,
		store:    store,
		detector: &fakeDetector{j: j, preds: preds},
		hooks:    &fakeWebhooks{j: j, homebridge: true},
		notifier: &fakeNotifier{j: j},
		clock:    &clock,
	}
	f.o = &Orchestrator{
		Cameras: map[string]Camera{
			"1": {ID: "1", Name: "Driveway", TriggerURL: "http://cam/trigger", HomekitAccessoryID: "acc-1"},
			"2": {ID: "2", Name: "Garden", TriggerURL: "http://garden/trigger",
				IgnoreAreas: []detectionservice.Region{{XMin: 0, YMin: 0, XMax: 100, YMax: 100}}},
		},
		Store:      journalStore{MemoryStore: store, j: j},
		Snapshots:  &fakeSnapshots{j: j, image: []byte("jpeg")},
		Detector:   f.detector,
		Classifier: detectionservice.Classifier{Labels: []string{"person", "car"}, MinWidth: 5, MinHeight: 5, MinConfidence: 50},
		Webhooks:   f.hooks,
		Annotator:  &fakeAnnotator{j: j},
		Captures:   &fakeCaptures{j: j},
		Notifier:   f.notifier,
		Interval:   60 * time.Second,
		Now:        func() time.Time { return *f.clock },
	}
	return f
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func TestMatchRunsSideEffectsInOrder(t *testing.T) {
	f := newFixture(
		detectionservice.Prediction{Label: "dog", Confidence: 0.9, XMin: 0, YMin: 0, XMax: 50, YMax: 50},
		person,
	)
	out := f.o.Handle(context.Background(), "1")

	if out.Kind != KindTriggered || out.Err != nil {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if !strings.HasPrefix(out.Message, "Triggering camera because something was found - took ") {
		t.Errorf("message = %q", out.Message)
	}
	want := []string{"snapshot", "detect", "trigger http://cam/trigger", "record", "accessory acc-1", "annotate", "save", "notify"}
	if got := f.j.list(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v\nwant    %v", got, want)
	}
	if out.Verdict.MatchIndex != 1 || len(out.Verdict.Findings) != 2 {
		t.Errorf("verdict = %+v", out.Verdict)
	}
	if out.CapturePath != "/captures/Driveway.jpg" {
		t.Errorf("capture path = %q", out.CapturePath)
	}

	n := f.notifier.sent[0]
	if n.Title != "Motion Detected on Driveway" {
		t.Errorf("title = %q", n.Title)
	}
	if !strings.HasPrefix(n.Message, "Found object(s) on camera Driveway:\n\nObject: dog") {
		t.Errorf("message = %q", n.Message)
	}
	if string(n.Attachment) != "annotated:jpeg" {
		t.Errorf("attachment = %q", n.Attachment)
	}
}

func TestDebounceWindow(t *testing.T) {
	tests := []struct {
		name  string
		after time.Duration
		want  Kind
	}{
		{"inside window", 59 * time.Second, KindSkipped},
		{"at boundary", 60 * time.Second, KindTriggered},
		{"after window", 5 * time.Minute, KindTriggered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(person)
			if out := f.o.Handle(context.Background(), "1"); out.Kind != KindTriggered {
				t.Fatalf("first event = %v", out.Kind)
			}
			f.advance(tt.after)
			out := f.o.Handle(context.Background(), "1")
			if out.Kind != tt.want {
				t.Fatalf("second event = %v (%s), want %v", out.Kind, out.Message, tt.want)
			}
		})
	}
}

func TestSkipMessageAndNoCalls(t *testing.T) {
	f := newFixture(person)
	f.o.Handle(context.Background(), "1")
	f.advance(12 * time.Second)
	before := len(f.j.list())

	out := f.o.Handle(context.Background(), "1")
	if out.Message != "Skipping detection on Driveway since it was only triggered 12.0s ago" {
		t.Errorf("message = %q", out.Message)
	}
	if len(f.j.list()) != before {
		t.Errorf("skip made calls: %v", f.j.list()[before:])
	}
}

func TestDebounceIsPerCamera(t *testing.T) {
	f := newFixture(detectionservice.Prediction{Label: "car", Confidence: 0.9, XMin: 200, YMin: 200, XMax: 300, YMax: 300})
	f.o.Handle(context.Background(), "1")
	if out := f.o.Handle(context.Background(), "2"); out.Kind != KindTriggered {
		t.Fatalf("other camera = %v", out.Kind)
	}
}

func TestNoMatch(t *testing.T) {
	f := newFixture(detectionservice.Prediction{Label: "cat", Confidence: 0.99, XMin: 0, YMin: 0, XMax: 90, YMax: 90})
	out := f.o.Handle(context.Background(), "1")

	if out.Kind != KindNoMatch || out.Message != "Driveway triggered - nothing found" {
		t.Fatalf("outcome = %v %q", out.Kind, out.Message)
	}
	if got := f.j.list(); strings.Join(got, ",") != "snapshot,detect" {
		t.Errorf("calls = %v", got)
	}
	if len(f.store.Snapshot()) != 0 {
		t.Error("no-match recorded a trigger")
	}
}

func TestIgnoredPredictionDoesNotTrigger(t *testing.T) {
	f := newFixture(detectionservice.Prediction{Label: "person", Confidence: 0.99, XMin: 20, YMin: 20, XMax: 80, YMax: 80})
	if out := f.o.Handle(context.Background(), "2"); out.Kind != KindNoMatch {
		t.Fatalf("outcome = %v", out.Kind)
	}
}

func TestDetectionBackendFailure(t *testing.T) {
	f := newFixture()
	f.detector.err = errors.New("detection backend error: model unavailable")

	out := f.o.Handle(context.Background(), "1")
	if out.Kind != KindFailed || !errors.Is(out.Err, ErrDetection) {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if !strings.Contains(out.Err.Error(), "model unavailable") || !strings.Contains(out.Message, "model unavailable") {
		t.Errorf("backend text lost: %q / %v", out.Message, out.Err)
	}
	if len(f.store.Snapshot()) != 0 {
		t.Error("debounce store changed")
	}
	if got := f.j.list(); strings.Join(got, ",") != "snapshot,detect" {
		t.Errorf("side effects ran: %v", got)
	}
}

func TestDetectionTimeout(t *testing.T) {
	f := newFixture(person)
	f.detector.delay = time.Second
	f.o.DetectionTimeout = 20 * time.Millisecond

	out := f.o.Handle(context.Background(), "1")
	if !errors.Is(out.Err, ErrDetection) || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestSnapshotFailure(t *testing.T) {
	f := newFixture(person)
	f.o.Snapshots = &fakeSnapshots{j: f.j, err: errors.New("surveillance station returned non-200: 500")}

	out := f.o.Handle(context.Background(), "1")
	if out.Kind != KindFailed || !errors.Is(out.Err, ErrSnapshot) {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if got := f.j.list(); strings.Join(got, ",") != "snapshot" {
		t.Errorf("calls = %v", got)
	}
}

func TestUnknownCamera(t *testing.T) {
	f := newFixture(person)
	out := f.o.Handle(context.Background(), "99")
	if out.Kind != KindFailed || !errors.Is(out.Err, ErrUnknownCamera) {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if len(f.j.list()) != 0 {
		t.Errorf("calls = %v", f.j.list())
	}
}

func TestCameraWebhookFailureIsNotFatal(t *testing.T) {
	f := newFixture(person)
	f.hooks.triggerErr = errors.New("connection refused")

	out := f.o.Handle(context.Background(), "1")
	if out.Kind != KindTriggered || out.Err != nil {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if _, ok := f.store.Snapshot()["1"]; !ok {
		t.Error("trigger not recorded")
	}
}

func TestNotificationFailureIsSurfaced(t *testing.T) {
	f := newFixture(person)
	f.notifier.err = errors.New("pushover rejected message: 400")

	out := f.o.Handle(context.Background(), "1")
	if out.Kind != KindTriggered || !errors.Is(out.Err, ErrNotification) {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if _, ok := f.store.Snapshot()["1"]; !ok {
		t.Error("trigger not recorded before notification")
	}
}

func TestAnnotationFailureSendsRawSnapshot(t *testing.T) {
	f := newFixture(person)
	f.o.Annotator = &fakeAnnotator{j: f.j, err: errors.New("decode")}

	out := f.o.Handle(context.Background(), "1")
	if out.Err != nil {
		t.Fatalf("err = %v", out.Err)
	}
	if string(f.notifier.sent[0].Attachment) != "jpeg" {
		t.Errorf("attachment = %q", f.notifier.sent[0].Attachment)
	}
	for _, c := range f.j.list() {
		if c == "save" {
			t.Error("saved capture without annotation")
		}
	}
}

func TestHomebridgeSkippedWithoutAccessory(t *testing.T) {
	f := newFixture(detectionservice.Prediction{Label: "car", Confidence: 0.9, XMin: 200, YMin: 200, XMax: 300, YMax: 300})
	f.o.Handle(context.Background(), "2")
	for _, c := range f.j.list() {
		if strings.HasPrefix(c, "accessory") {
			t.Errorf("accessory webhook called for camera without id")
		}
	}
}

func TestConcurrentEventsTriggerOnce(t *testing.T) {
	f := newFixture(person)
	f.o.Now = nil
	f.detector.delay = 30 * time.Millisecond

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.o.Handle(context.Background(), "1")
		}(i)
	}
	wg.Wait()

	triggered := 0
	for _, o := range outcomes {
		if o.Kind == KindTriggered {
			triggered++
		}
	}
	if triggered != 1 {
		t.Errorf("triggered %d times", triggered)
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUnreachableHomebridgeStillSavesAndNotifies(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	homebridge := down.URL
	down.Close()

	cameraHook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer cameraHook.Close()

	dir := t.TempDir()
	j := &journal{}
	notifier := &fakeNotifier{j: j}
	o := &Orchestrator{
		Cameras: map[string]Camera{
			"1": {ID: "1", Name: "Driveway", TriggerURL: cameraHook.URL, HomekitAccessoryID: "acc-1"},
		},
		Store:      debounceservice.NewMemoryStore(),
		Snapshots:  &fakeSnapshots{j: j, image: testPNG(t)},
		Detector:   &fakeDetector{j: j, preds: []detectionservice.Prediction{person}},
		Classifier: detectionservice.Classifier{Labels: []string{"person"}},
		Webhooks:   webhookservice.NewClient(homebridge, &http.Client{Timeout: time.Second}),
		Annotator:  annotateservice.New(),
		Captures:   captureservice.New(dir, nil),
		Notifier:   notifier,
		Interval:   time.Minute,
	}

	out := o.Handle(context.Background(), "1")
	if out.Kind != KindTriggered || out.Err != nil {
		t.Fatalf("outcome = %v, %v", out.Kind, out.Err)
	}
	if out.CapturePath == "" {
		t.Fatal("no capture saved")
	}
	if _, err := os.Stat(out.CapturePath); err != nil {
		t.Errorf("capture missing: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d", len(notifier.sent))
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		KindSkipped:   "skipped",
		KindNoMatch:   "no_match",
		KindTriggered: "triggered",
		KindFailed:    "failed",
	} {
		if k.String() != want {
			t.Errorf("%d = %q", k, k.String())
		}
	}
}
