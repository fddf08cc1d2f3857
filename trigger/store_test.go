package trigger

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swing-trigger/wav"
)

func TestPersistSampleWritesWaveformAndMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTrainingStore(dir, 44100)

	ts := time.UnixMilli(1712345678901)
	samples := make([]float64, 44100)
	samples[17] = 0.5
	store.PersistSample(samples, impactFeatures(), 0.82, 0.3, ts)

	wavPath := filepath.Join(dir, "trigger_1712345678901_shot.wav")
	decoded, rate, err := wav.ReadFile(wavPath)
	if err != nil {
		t.Fatalf("snippet not readable: %v", err)
	}
	if rate != 44100 {
		t.Errorf("snippet sample rate = %d, want 44100", rate)
	}
	if len(decoded) != len(samples) {
		t.Errorf("snippet length = %d, want %d", len(decoded), len(samples))
	}
	if math.Abs(decoded[17]-0.5) > 1e-3 {
		t.Errorf("snippet sample = %v, want ~0.5", decoded[17])
	}

	metaData, err := os.ReadFile(filepath.Join(dir, "trigger_1712345678901_meta.json"))
	if err != nil {
		t.Fatalf("metadata not readable: %v", err)
	}
	var meta SampleMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		t.Fatalf("metadata not parseable: %v", err)
	}
	if meta.Timestamp != 1712345678901 {
		t.Errorf("meta timestamp = %d, want 1712345678901", meta.Timestamp)
	}
	if meta.Label != 1 {
		t.Errorf("default label = %d, want 1", meta.Label)
	}
	if meta.Confidence != 0.82 || meta.Threshold != 0.3 {
		t.Errorf("meta confidence/threshold = %v/%v, want 0.82/0.3", meta.Confidence, meta.Threshold)
	}
	if meta.Features != impactFeatures() {
		t.Errorf("meta features = %+v, want persisted vector", meta.Features)
	}
}

func TestSampleCountIgnoresUnrelatedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTrainingStore(dir, 44100)

	base := time.Now()
	for i := 0; i < 3; i++ {
		store.PersistSample(nil, noiseFeatures(), 0.5, 0.3, base.Add(time.Duration(i)*time.Second))
	}
	for _, name := range []string{"notes.txt", "trigger_999_shot.wav", "other_meta.json", ".DS_Store"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write decoy %s: %v", name, err)
		}
	}

	if n := store.SampleCount(); n != 3 {
		t.Errorf("sample count = %d, want 3 (unrelated files must be ignored)", n)
	}
}

func TestRelabelRenamesWaveformAndRewritesLabel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTrainingStore(dir, 44100)

	ts := time.UnixMilli(1700000000000)
	store.PersistSample(make([]float64, 1024), impactFeatures(), 0.7, 0.3, ts)
	store.Relabel(ts.UnixMilli(), 0)

	if _, err := os.Stat(filepath.Join(dir, "trigger_1700000000000_shot.wav")); !os.IsNotExist(err) {
		t.Error("shot waveform still present after relabel")
	}
	if _, err := os.Stat(filepath.Join(dir, "trigger_1700000000000_not_shot.wav")); err != nil {
		t.Errorf("not-shot waveform missing after relabel: %v", err)
	}

	metaData, err := os.ReadFile(filepath.Join(dir, "trigger_1700000000000_meta.json"))
	if err != nil {
		t.Fatalf("metadata not readable: %v", err)
	}
	var meta SampleMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		t.Fatalf("metadata not parseable: %v", err)
	}
	if meta.Label != 0 {
		t.Errorf("label after relabel = %d, want 0", meta.Label)
	}

	labeled := store.LabeledSamples()
	if len(labeled) != 1 {
		t.Fatalf("labeled sample count = %d, want 1", len(labeled))
	}
	if labeled[0].Label != 0 {
		t.Errorf("scanned label = %d, want 0", labeled[0].Label)
	}
}

func TestRelabelUnknownIdentityIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTrainingStore(dir, 44100)

	// must not panic, error, or create files
	store.Relabel(123456789, 0)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("relabel of unknown identity created %d files", len(entries))
	}
}

func TestLabeledSamplesInfersLabelFromWaveformSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTrainingStore(dir, 44100)

	// legacy record without an explicit label field
	meta := map[string]any{
		"timestamp":  int64(1600000000000),
		"confidence": 0.6,
		"features":   noiseFeatures(),
		"threshold":  0.3,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("failed to marshal legacy meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trigger_1600000000000_meta.json"), data, 0644); err != nil {
		t.Fatalf("failed to write legacy meta: %v", err)
	}
	if err := wav.WriteFile(filepath.Join(dir, "trigger_1600000000000_not_shot.wav"), make([]float64, 64), 44100); err != nil {
		t.Fatalf("failed to write waveform: %v", err)
	}

	labeled := store.LabeledSamples()
	if len(labeled) != 1 {
		t.Fatalf("labeled sample count = %d, want 1", len(labeled))
	}
	if labeled[0].Label != 0 {
		t.Errorf("inferred label = %d, want 0 from not_shot suffix", labeled[0].Label)
	}
}

func TestLabeledSamplesSkipsCorruptRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewTrainingStore(dir, 44100)

	store.PersistSample(nil, impactFeatures(), 0.9, 0.3, time.Now())
	if err := os.WriteFile(filepath.Join(dir, "trigger_42_meta.json"), []byte("{broken"), 0644); err != nil {
		t.Fatalf("failed to write corrupt meta: %v", err)
	}

	labeled := store.LabeledSamples()
	if len(labeled) != 1 {
		t.Errorf("labeled sample count = %d, want 1 (corrupt record skipped)", len(labeled))
	}
}
