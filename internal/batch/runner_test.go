package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/capture"
	"github.com/sua-org/cam-snap/internal/core"
	"github.com/sua-org/cam-snap/internal/snapshot"
	"github.com/sua-org/cam-snap/internal/storage"
)

type fakeSnapshotter struct {
	dir   string
	fail  map[string]error
	calls []string
}

func (f *fakeSnapshotter) SnapshotWithRetry(_ context.Context, preset string) (*core.CapturedSnapshot, error) {
	f.calls = append(f.calls, preset)
	if err := f.fail[preset]; err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, snapshot.OutputName(preset))
	if err := os.WriteFile(path, []byte("jpeg:"+preset), 0o600); err != nil {
		return nil, err
	}
	return &core.CapturedSnapshot{
		Path:       path,
		Width:      1920,
		Height:     1080,
		Preset:     core.PresetLabel(preset),
		CapturedAt: time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC),
	}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  map[string]error
	copies  [][2]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, putErr: map[string]error{}}
}

func (s *fakeStore) PutFile(_ context.Context, key, path, _ string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return s.put(key, data)
}

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return s.put(key, data)
}

func (s *fakeStore) put(key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErr[key]; err != nil {
		return "", err
	}
	s.objects[key] = data
	return "http://minio:9000/snapshots/" + key, nil
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return data, nil
}

func (s *fakeStore) Copy(_ context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("%s: %w", src, storage.ErrNotFound)
	}
	s.objects[dst] = data
	s.copies = append(s.copies, [2]string{src, dst})
	return nil
}

func (s *fakeStore) index(t *testing.T, key string) Index {
	t.Helper()
	data, ok := s.objects[key]
	if !ok {
		t.Fatalf("index %s not written", key)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		t.Fatalf("index json: %v", err)
	}
	return ix
}

type published struct {
	topic    string
	retained bool
	v        any
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) PublishJSON(topic string, retained bool, v any) error {
	p.msgs = append(p.msgs, published{topic, retained, v})
	return p.err
}

var testNow = time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)

func newTestRunner(t *testing.T, snap Snapshotter, store storage.ObjectStore, pub Publisher, presets []string) *Runner {
	t.Helper()
	r := NewRunner(snap, store, pub, Options{Presets: presets, CameraIP: "10.0.0.5", BaseTopic: "cam-snap"}, zerolog.Nop())
	r.now = func() time.Time { return testNow }
	r.runID = func() string { return "run-1" }
	return r
}

func TestRun_AllPresetsSucceed(t *testing.T) {
	dir := t.TempDir()
	snap := &fakeSnapshotter{dir: dir}
	store := newFakeStore()
	pub := &fakePublisher{}
	r := newTestRunner(t, snap, store, pub, []string{"1", "2"})

	report, err := r.Run(context.Background(), "http")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantKey := "2024/05/01/early_2024-05-01_snapshot_1.jpg"
	if report.Uploaded["1"] != wantKey {
		t.Errorf("uploaded[1] = %q, want %q", report.Uploaded["1"], wantKey)
	}
	if string(store.objects[wantKey]) != "jpeg:1" {
		t.Errorf("object content = %q", store.objects[wantKey])
	}
	if string(store.objects["latest/snapshot_2.jpg"]) != "jpeg:2" {
		t.Errorf("latest alias missing for preset 2")
	}
	if got := strings.Join(report.Succeeded, ","); got != "1,2" {
		t.Errorf("succeeded = %s", got)
	}
	if report.RunID != "run-1" || report.Trigger != "http" {
		t.Errorf("report = %+v", report)
	}

	ix := store.index(t, "2024/05/01/index.json")
	if ix.Date != "2024-05-01" || len(ix.Snapshots) != 2 {
		t.Fatalf("index = %+v", ix)
	}
	if e := ix.Snapshots[0]; e.Time != "07:30" || e.Preset != "1" || e.Path != wantKey {
		t.Errorf("entry = %+v", e)
	}

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.msgs))
	}
	evt, ok := pub.msgs[1].v.(core.SnapshotEvent)
	if !ok || pub.msgs[1].topic != "cam-snap/snapshots/2" || pub.msgs[1].retained {
		t.Fatalf("msg = %+v", pub.msgs[1])
	}
	if evt.RunID != "run-1" || evt.LatestKey != "latest/snapshot_2.jpg" || evt.CameraIP != "10.0.0.5" || evt.Width != 1920 {
		t.Errorf("event = %+v", evt)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d", len(entries))
	}
}

func TestRun_CurrentPositionWhenNoPresets(t *testing.T) {
	snap := &fakeSnapshotter{dir: t.TempDir()}
	store := newFakeStore()
	r := newTestRunner(t, snap, store, nil, nil)

	report, err := r.Run(context.Background(), "cron")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(snap.calls) != 1 || snap.calls[0] != "" {
		t.Errorf("calls = %q", snap.calls)
	}
	if _, ok := report.Uploaded[core.CurrentPositionLabel]; !ok {
		t.Errorf("uploaded = %v", report.Uploaded)
	}
	if _, ok := store.objects["latest/snapshot_current.jpg"]; !ok {
		t.Error("latest/snapshot_current.jpg missing")
	}
}

func TestRun_FailuresAggregated(t *testing.T) {
	unauthorized := &snapshot.PresetError{Preset: "2", Stage: snapshot.StagePreset, Err: errors.New("401")}
	noFrames := &snapshot.PresetError{Preset: "3", Stage: snapshot.StageCapture, Err: &capture.CaptureError{Reason: capture.ErrRetriesExhausted, Attempts: 3}}
	snap := &fakeSnapshotter{dir: t.TempDir(), fail: map[string]error{"2": unauthorized, "3": noFrames}}
	store := newFakeStore()
	r := newTestRunner(t, snap, store, nil, []string{"1", "2", "3", "4"})

	report, err := r.Run(context.Background(), "http")
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if got := strings.Join(be.Failed, ","); got != "2,3" {
		t.Errorf("failed = %s", got)
	}
	if !strings.Contains(err.Error(), "failed for presets: 2, 3") {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, capture.ErrRetriesExhausted) {
		t.Error("cause should be reachable through BatchError")
	}
	if got := strings.Join(snap.calls, ","); got != "1,2,3,4" {
		t.Errorf("calls = %s, later presets must still run", got)
	}
	if got := strings.Join(report.Succeeded, ","); got != "1,4" {
		t.Errorf("succeeded = %s", got)
	}
	if ix := store.index(t, "2024/05/01/index.json"); len(ix.Snapshots) != 2 {
		t.Errorf("index entries = %d, want 2", len(ix.Snapshots))
	}
}

func TestRun_NoIndexWhenEverythingFails(t *testing.T) {
	snap := &fakeSnapshotter{dir: t.TempDir(), fail: map[string]error{"": errors.New("unreachable")}}
	store := newFakeStore()
	r := newTestRunner(t, snap, store, nil, nil)

	if _, err := r.Run(context.Background(), "cron"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := store.objects["2024/05/01/index.json"]; ok {
		t.Error("empty index must not be written")
	}
}

func TestRun_UpdatesExistingIndexSlot(t *testing.T) {
	store := newFakeStore()
	existing := Index{Date: "2024-05-01", Snapshots: []IndexEntry{
		{Time: "06:00", Preset: "1", Path: "2024/05/01/early_2024-05-01_old_1.jpg"},
		{Time: "01:00", Preset: "1", Path: "2024/05/01/night_2024-05-01_snapshot_1.jpg"},
		{Time: "06:00", Preset: "2", Path: "2024/05/01/early_2024-05-01_snapshot_2.jpg"},
	}}
	data, _ := json.Marshal(existing)
	store.objects["2024/05/01/index.json"] = data

	r := newTestRunner(t, &fakeSnapshotter{dir: t.TempDir()}, store, nil, []string{"1", "3"})
	if _, err := r.Run(context.Background(), "http"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ix := store.index(t, "2024/05/01/index.json")
	if len(ix.Snapshots) != 4 {
		t.Fatalf("entries = %+v", ix.Snapshots)
	}
	if e := ix.Snapshots[0]; e.Time != "07:30" || e.Path != "2024/05/01/early_2024-05-01_snapshot_1.jpg" || e.RunID != "run-1" {
		t.Errorf("early slot not updated in place: %+v", e)
	}
	if e := ix.Snapshots[1]; e.Time != "01:00" {
		t.Errorf("night slot touched: %+v", e)
	}
	if e := ix.Snapshots[3]; e.Preset != "3" {
		t.Errorf("new preset not appended: %+v", e)
	}
}

func TestRun_CorruptIndexStartsFresh(t *testing.T) {
	store := newFakeStore()
	store.objects["2024/05/01/index.json"] = []byte("{not json")

	r := newTestRunner(t, &fakeSnapshotter{dir: t.TempDir()}, store, nil, []string{"1"})
	if _, err := r.Run(context.Background(), "http"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ix := store.index(t, "2024/05/01/index.json"); len(ix.Snapshots) != 1 || ix.Date != "2024-05-01" {
		t.Errorf("index = %+v", ix)
	}
}

func TestRun_UploadAndIndexFailures(t *testing.T) {
	store := newFakeStore()
	store.putErr["2024/05/01/early_2024-05-01_snapshot_2.jpg"] = errors.New("bucket full")
	store.putErr["2024/05/01/index.json"] = errors.New("access denied")

	r := newTestRunner(t, &fakeSnapshotter{dir: t.TempDir()}, store, nil, []string{"1", "2"})
	_, err := r.Run(context.Background(), "http")

	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v", err)
	}
	if len(be.Failed) != 1 || be.Failed[0] != "2" {
		t.Errorf("failed = %v", be.Failed)
	}
	if be.IndexErr == nil || !strings.Contains(err.Error(), "index update failed") {
		t.Errorf("index error not reported: %v", err)
	}
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	r := newTestRunner(t, &fakeSnapshotter{dir: t.TempDir()}, newFakeStore(), pub, []string{"1"})
	if _, err := r.Run(context.Background(), "http"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := &fakeSnapshotter{dir: t.TempDir()}
	r := newTestRunner(t, snap, newFakeStore(), nil, []string{"1", "2"})

	_, err := r.Run(ctx, "cron")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(snap.calls) != 0 {
		t.Errorf("calls = %v", snap.calls)
	}
}

func TestHourLabel(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, "night"}, {4, "night"}, {5, "early"}, {9, "early"},
		{10, "midday"}, {14, "midday"}, {15, "late"}, {20, "late"},
		{21, "night"}, {23, "night"},
	}
	for _, tt := range tests {
		ts := time.Date(2024, 5, 1, tt.hour, 59, 0, 0, time.UTC)
		if got := HourLabel(ts); got != tt.want {
			t.Errorf("HourLabel(%02d:59) = %q, want %q", tt.hour, got, tt.want)
		}
	}

	// hora local é convertida pra UTC
	brt := time.FixedZone("BRT", -3*3600)
	if got := HourLabel(time.Date(2024, 5, 1, 7, 0, 0, 0, brt)); got != "midday" {
		t.Errorf("HourLabel(07:00 BRT) = %q, want midday", got)
	}
}

func TestKeys(t *testing.T) {
	ts := time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC)
	if got := ObjectKey(ts, "snapshot_1.jpg"); got != "2024/12/31/night_2024-12-31_snapshot_1.jpg" {
		t.Errorf("ObjectKey = %q", got)
	}
	if got := IndexKey(ts); got != "2024/12/31/index.json" {
		t.Errorf("IndexKey = %q", got)
	}
	if got := slotPrefix(ts); got != "2024/12/31/night_" {
		t.Errorf("slotPrefix = %q", got)
	}
	if got := LatestKey("snapshot_1.jpg"); got != "latest/snapshot_1.jpg" {
		t.Errorf("LatestKey = %q", got)
	}
}
