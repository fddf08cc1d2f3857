package trigger

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeSource replays a fixed chunk sequence, then EOF. ReadChunk is never
// concurrent with itself (the detector is the single reader).
type fakeSource struct {
	chunks    [][]float64
	pos       int
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSource(chunks ...[]float64) *fakeSource {
	return &fakeSource{chunks: chunks, closed: make(chan struct{})}
}

func (s *fakeSource) ReadChunk() ([]float64, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *fakeSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// endlessSilence yields silent chunks forever; used to exercise Stop.
type endlessSilence struct {
	chunkSize int
}

func (s *endlessSilence) ReadChunk() ([]float64, error) {
	return make([]float64, s.chunkSize), nil
}

func (s *endlessSilence) Close() error { return nil }

// impactChunk is 1024 samples with a few unit spikes: loud enough to pass the
// gate (level ~0.6) and impulsive enough for the heuristic to fire.
func impactChunk() []float64 {
	chunk := make([]float64, 1024)
	for _, idx := range []int{100, 350, 600, 850} {
		chunk[idx] = 1.0
	}
	return chunk
}

func quietChunk() []float64 {
	return make([]float64, 1024)
}

func newTestDetector(t *testing.T, source ChunkSource) (*Detector, *TrainingStore) {
	t.Helper()

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.TrainingDir = dir
	cfg.ModelPath = filepath.Join(dir, "audio_classifier.json")

	store := NewTrainingStore(cfg.TrainingDir, cfg.SampleRate)
	classifier := NewClassifier(cfg, store)
	extractor := NewFeatureExtractor(cfg.SampleRate)

	detector := NewDetector(cfg, extractor, classifier, store, func() (ChunkSource, error) {
		return source, nil
	})
	return detector, store
}

func waitForIdle(t *testing.T, d *Detector) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for d.Running() {
		if time.Now().After(deadline) {
			t.Fatal("detector did not go idle before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDetectorFiresOnceWithinCooldown(t *testing.T) {
	t.Parallel()

	// two full windows of impacts; the second falls inside the cooldown
	source := newFakeSource()
	for i := 0; i < 8; i++ {
		source.chunks = append(source.chunks, impactChunk())
	}

	detector, store := newTestDetector(t, source)

	var mu sync.Mutex
	var events []TriggerEvent
	var levels []float64
	detector.OnTrigger(func(e TriggerEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	detector.OnLevel(func(l float64) {
		mu.Lock()
		levels = append(levels, l)
		mu.Unlock()
	})

	if err := detector.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForIdle(t, detector)

	mu.Lock()
	defer mu.Unlock()

	if len(events) != 1 {
		t.Fatalf("trigger count = %d, want exactly 1 (cooldown must suppress the echo window)", len(events))
	}
	event := events[0]
	if event.Confidence < 0.45 {
		t.Errorf("fired with confidence %.3f below the classification threshold", event.Confidence)
	}
	if event.Level < detector.Threshold() {
		t.Errorf("fired with level %.3f below the trigger threshold %.3f", event.Level, detector.Threshold())
	}
	if event.Features.CrestFactor <= 10 {
		t.Errorf("event features look wrong: crest factor = %.2f", event.Features.CrestFactor)
	}

	if len(levels) != 8 {
		t.Errorf("level updates = %d, want one per chunk (8) regardless of gating", len(levels))
	}

	if n := store.SampleCount(); n != 1 {
		t.Errorf("persisted sample count = %d, want 1", n)
	}

	select {
	case <-source.closed:
	case <-time.After(5 * time.Second):
		t.Error("source was not closed after the session drained")
	}
}

func TestDetectorGateResetsAccumulator(t *testing.T) {
	t.Parallel()

	// never four consecutive loud chunks, so no window may complete
	source := newFakeSource(
		impactChunk(), impactChunk(), impactChunk(),
		quietChunk(),
		impactChunk(), impactChunk(), impactChunk(),
	)

	detector, store := newTestDetector(t, source)

	var mu sync.Mutex
	triggers := 0
	detector.OnTrigger(func(TriggerEvent) {
		mu.Lock()
		triggers++
		mu.Unlock()
	})

	if err := detector.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForIdle(t, detector)

	mu.Lock()
	defer mu.Unlock()
	if triggers != 0 {
		t.Errorf("trigger count = %d, want 0 (gate must discard partial windows)", triggers)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("persisted sample count = %d, want 0", n)
	}
}

func TestDetectorStaysIdleWhenSourceUnavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.TrainingDir = dir
	cfg.ModelPath = filepath.Join(dir, "audio_classifier.json")

	store := NewTrainingStore(cfg.TrainingDir, cfg.SampleRate)
	detector := NewDetector(cfg, NewFeatureExtractor(cfg.SampleRate), NewClassifier(cfg, store), store,
		func() (ChunkSource, error) {
			return nil, errors.New("device busy")
		})

	if err := detector.Start(); err == nil {
		t.Fatal("Start succeeded with an unavailable source")
	}
	if detector.Running() {
		t.Error("detector running after failed Start")
	}
	// a later Start with a working source must still succeed
	detector.SetSource(func() (ChunkSource, error) {
		return newFakeSource(), nil
	})
	if err := detector.Start(); err != nil {
		t.Fatalf("Start after SetSource failed: %v", err)
	}
	waitForIdle(t, detector)
}

func TestDetectorStopJoinsWorker(t *testing.T) {
	t.Parallel()

	detector, _ := newTestDetector(t, &endlessSilence{chunkSize: 1024})

	if err := detector.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !detector.Running() {
		t.Fatal("detector not running after Start")
	}

	done := make(chan struct{})
	go func() {
		detector.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after worker join")
	}
	if detector.Running() {
		t.Error("detector still running after Stop")
	}

	// Stop on an idle detector is a no-op
	detector.Stop()
}

func TestDetectorReleasesSourceBeforeGoingIdle(t *testing.T) {
	t.Parallel()

	source := newFakeSource(quietChunk(), quietChunk())
	detector, _ := newTestDetector(t, source)

	if err := detector.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForIdle(t, detector)

	// an idle detector must have already released its source, so the caller
	// can reopen the device without racing the old handle
	select {
	case <-source.closed:
	default:
		t.Fatal("detector reported idle while the source was still open")
	}
}

func TestDetectorThresholdSetterIsApplied(t *testing.T) {
	t.Parallel()

	// raise the threshold above the impact level so nothing may fire
	source := newFakeSource()
	for i := 0; i < 8; i++ {
		source.chunks = append(source.chunks, impactChunk())
	}
	detector, _ := newTestDetector(t, source)
	detector.SetThreshold(0.95)

	var mu sync.Mutex
	triggers := 0
	detector.OnTrigger(func(TriggerEvent) {
		mu.Lock()
		triggers++
		mu.Unlock()
	})

	if err := detector.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForIdle(t, detector)

	mu.Lock()
	defer mu.Unlock()
	if triggers != 0 {
		t.Errorf("trigger count = %d, want 0 with threshold 0.95", triggers)
	}
	if got := detector.Threshold(); got != 0.95 {
		t.Errorf("Threshold() = %v, want 0.95", got)
	}
}
