package trigger

// TrainingStore persists one labeled sample per detected trigger: a WAV
// snippet of the audio around the event plus a JSON metadata record with the
// extracted features. The on-disk layout is part of the interop contract:
//
//	trigger_<unixms>_shot.wav       waveform, label encoded in the suffix
//	trigger_<unixms>_not_shot.wav   waveform after a "not a shot" correction
//	trigger_<unixms>_meta.json      SampleMeta record
//
// Relabeling renames the waveform and rewrites the label field, keyed by the
// trigger timestamp the recording subsystem carries on its clips. Persistence
// failures are logged and swallowed: losing a training sample must never
// break a live capture.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"swing-trigger/utils"
	"swing-trigger/wav"
)

const (
	samplePrefix   = "trigger_"
	metaSuffix     = "_meta.json"
	shotSuffix     = "_shot.wav"
	notShotSuffix  = "_not_shot.wav"
	labelShot      = 1
	labelNotShot   = 0
)

// TrainingStore manages the labeled-sample directory.
type TrainingStore struct {
	mu         sync.Mutex
	dir        string
	sampleRate int
}

// NewTrainingStore returns a store rooted at dir. The directory is created
// lazily on first persist.
func NewTrainingStore(dir string, sampleRate int) *TrainingStore {
	return &TrainingStore{dir: dir, sampleRate: sampleRate}
}

// Dir returns the store directory.
func (s *TrainingStore) Dir() string { return s.dir }

// PersistSample writes the waveform and metadata for one trigger, labeled as
// a shot by default. Failures are logged, never returned: missing training
// data only degrades retrain eligibility.
func (s *TrainingStore) PersistSample(samples []float64, features FeatureVector, confidence, threshold float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := utils.GetLogger()
	ctx := context.Background()

	if err := utils.CreateFolder(s.dir); err != nil {
		logger.WarnContext(ctx, "failed to create training directory", slog.Any("error", err))
		return
	}

	base := baseName(ts.UnixMilli())

	if len(samples) > 0 {
		wavPath := filepath.Join(s.dir, base+shotSuffix)
		if err := wav.WriteFile(wavPath, samples, s.sampleRate); err != nil {
			logger.WarnContext(ctx, "failed to save trigger snippet",
				slog.String("base", base), slog.Any("error", err))
		}
	}

	meta := SampleMeta{
		Timestamp:  ts.UnixMilli(),
		Confidence: confidence,
		Features:   features,
		Label:      labelShot,
		Threshold:  threshold,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		logger.WarnContext(ctx, "failed to marshal sample metadata",
			slog.String("base", base), slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, base+metaSuffix), data, 0644); err != nil {
		logger.WarnContext(ctx, "failed to save sample metadata",
			slog.String("base", base), slog.Any("error", err))
	}
}

// Relabel flips the label of the sample identified by its trigger timestamp:
// the waveform is renamed to the matching suffix and the metadata label field
// rewritten. An unknown identity or missing files are a silent no-op so the
// surrounding user correction never fails.
func (s *TrainingStore) Relabel(timestampMs int64, label int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := utils.GetLogger()
	ctx := context.Background()
	base := baseName(timestampMs)

	fromSuffix, toSuffix := shotSuffix, notShotSuffix
	if label == labelShot {
		fromSuffix, toSuffix = notShotSuffix, shotSuffix
	}

	from := filepath.Join(s.dir, base+fromSuffix)
	to := filepath.Join(s.dir, base+toSuffix)
	if _, err := os.Stat(from); err == nil {
		if err := os.Rename(from, to); err != nil {
			logger.WarnContext(ctx, "failed to rename sample waveform",
				slog.String("base", base), slog.Any("error", err))
		} else {
			logger.InfoContext(ctx, "relabeled training sample",
				slog.String("base", base), slog.Int("label", label))
		}
	}

	metaPath := filepath.Join(s.dir, base+metaSuffix)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return
	}
	var meta SampleMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		logger.WarnContext(ctx, "failed to parse sample metadata",
			slog.String("base", base), slog.Any("error", err))
		return
	}
	meta.Label = label
	updated, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(metaPath, updated, 0644); err != nil {
		logger.WarnContext(ctx, "failed to rewrite sample metadata",
			slog.String("base", base), slog.Any("error", err))
	}
}

// SampleCount counts the persisted metadata records. The directory is scanned
// fresh on each call; unrelated files are ignored.
func (s *TrainingStore) SampleCount() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, samplePrefix) && strings.HasSuffix(name, metaSuffix) {
			count++
		}
	}
	return count
}

// LabeledSamples loads every readable labeled sample for retraining. The
// label comes from the metadata record when present, otherwise it is inferred
// from the paired waveform suffix; samples with neither are skipped, as are
// unreadable records.
func (s *TrainingStore) LabeledSamples() []LabeledVector {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	logger := utils.GetLogger()
	ctx := context.Background()

	var out []LabeledVector
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, samplePrefix) || !strings.HasSuffix(name, metaSuffix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable sample", slog.String("file", name))
			continue
		}
		var meta metaRecord
		if err := json.Unmarshal(data, &meta); err != nil {
			logger.WarnContext(ctx, "skipping corrupt sample metadata", slog.String("file", name))
			continue
		}

		label := labelShot
		switch {
		case meta.Label != nil:
			label = *meta.Label
		default:
			base := strings.TrimSuffix(name, metaSuffix)
			switch {
			case fileExists(filepath.Join(s.dir, base+shotSuffix)):
				label = labelShot
			case fileExists(filepath.Join(s.dir, base+notShotSuffix)):
				label = labelNotShot
			default:
				continue
			}
		}

		out = append(out, LabeledVector{Features: meta.Features.Slice(), Label: label})
	}
	return out
}

// metaRecord mirrors SampleMeta but keeps Label optional so legacy records
// without an explicit label fall back to waveform-suffix inference.
type metaRecord struct {
	Timestamp  int64         `json:"timestamp"`
	Confidence float64       `json:"confidence"`
	Features   FeatureVector `json:"features"`
	Label      *int          `json:"label"`
	Threshold  float64       `json:"threshold"`
}

func baseName(timestampMs int64) string {
	return fmt.Sprintf("%s%d", samplePrefix, timestampMs)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
