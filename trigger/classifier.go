package trigger

// Impact classifier.
//
// Two interchangeable modes behind one Classify entry point:
//
//  1. Heuristic (default): additive point scoring over hand-tuned feature
//     thresholds. Needs no training data and is the permanent fallback when
//     no valid model bundle exists on disk.
//  2. Learned: distance-weighted k-nearest-neighbour probability over the
//     z-scored labeled sample set. Activated only by a successful Retrain,
//     which fits the scaler and snapshots the full labeled set from the
//     TrainingStore, then persists the bundle atomically (temp file + rename).
//
// The mode is a plain switch over the presence of a model rather than an
// interface hierarchy, so behavior stays exhaustively enumerable. The model
// itself is immutable after construction; Retrain swaps the whole reference
// under the lock, so a classification racing a retrain sees either the old or
// the new model, never a partially-built one.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"swing-trigger/utils"
)

// Classifier modes.
const (
	ModeHeuristic = "heuristic"
	ModeLearned   = "learned"
)

const (
	// minTrainingSamples is the retrain eligibility floor.
	minTrainingSamples = 10
	// defaultNeighbours caps k for the learned model.
	defaultNeighbours = 5
	// modelKindKNN tags the persisted bundle format.
	modelKindKNN = "knn"
)

// Classifier scores feature vectors with a confidence in [0, 1] that they
// represent a golf-ball impact. Safe for concurrent use; Retrain may run
// concurrently with Classify.
type Classifier struct {
	mu        sync.RWMutex
	model     *knnModel // nil in heuristic mode
	modelPath string
	store     *TrainingStore
}

// knnModel is the in-memory learned model: the scaler plus the training
// vectors pre-scaled at fit/load time. Immutable after construction.
type knnModel struct {
	k           int
	sampleCount int
	scaler      *FeatureScaler
	scaled      []LabeledVector
}

// NewClassifier builds a classifier over the given store, loading a persisted
// model bundle from cfg.ModelPath when one exists. A missing or corrupt
// bundle is treated as absence: the classifier logs and starts heuristic.
func NewClassifier(cfg Config, store *TrainingStore) *Classifier {
	c := &Classifier{modelPath: cfg.ModelPath, store: store}

	logger := utils.GetLogger()
	ctx := context.Background()

	model, err := loadModelBundle(cfg.ModelPath)
	switch {
	case err == nil && model != nil:
		c.model = model
		logger.InfoContext(ctx, "loaded learned audio classifier",
			slog.Int("sampleCount", model.sampleCount),
			slog.Int("k", model.k))
	case err != nil && !errors.Is(err, os.ErrNotExist):
		logger.WarnContext(ctx, "failed to load audio classifier, using heuristic mode",
			slog.String("path", cfg.ModelPath), slog.Any("error", err))
	}

	return c
}

// Mode reports the active classification mode.
func (c *Classifier) Mode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model != nil {
		return ModeLearned
	}
	return ModeHeuristic
}

// Classify returns the confidence in [0, 1] that the window represents an
// impact.
func (c *Classifier) Classify(features FeatureVector) float64 {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()

	if model != nil {
		return model.probability(features.Slice())
	}
	return classifyHeuristic(features)
}

// TrainingSampleCount reports how many labeled sample records are persisted.
func (c *Classifier) TrainingSampleCount() int {
	return c.store.SampleCount()
}

// Retrain fits a new model from scratch over the full labeled set. It returns
// false, leaving the current mode untouched, when fewer than 10 usable
// samples exist or when only one class is represented; these are routine
// outcomes, not errors. On success the bundle is persisted atomically and the
// in-memory model swapped.
func (c *Classifier) Retrain() bool {
	logger := utils.GetLogger()
	ctx := context.Background()

	samples := c.store.LabeledSamples()
	if len(samples) < minTrainingSamples {
		logger.InfoContext(ctx, "not enough training samples, staying in current mode",
			slog.Int("have", len(samples)), slog.Int("need", minTrainingSamples))
		return false
	}

	var positives, negatives int
	for _, s := range samples {
		if s.Label == labelShot {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		logger.InfoContext(ctx, "need both shot and not-shot samples to train",
			slog.Int("shot", positives), slog.Int("notShot", negatives))
		return false
	}

	scaler, err := NewFeatureScalerFromSamples(samples)
	if err != nil {
		logger.WarnContext(ctx, "failed to fit feature scaler", slog.Any("error", err))
		return false
	}

	model := newKNNModel(samples, scaler, defaultNeighbours)

	bundle := ModelBundle{
		Kind:        modelKindKNN,
		K:           model.k,
		SampleCount: len(samples),
		Scaler:      scaler,
		Samples:     samples,
	}
	if err := saveModelBundle(c.modelPath, bundle); err != nil {
		logger.WarnContext(ctx, "failed to persist audio classifier", slog.Any("error", err))
		return false
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	logger.InfoContext(ctx, "audio classifier retrained",
		slog.Int("sampleCount", len(samples)),
		slog.Int("shot", positives),
		slog.Int("notShot", negatives))
	return true
}

// newKNNModel scales the training vectors once and fixes the neighbour count
// at min(maxK, n-1).
func newKNNModel(samples []LabeledVector, scaler *FeatureScaler, maxK int) *knnModel {
	scaled := make([]LabeledVector, len(samples))
	for i, s := range samples {
		scaled[i] = LabeledVector{Features: scaler.Transform(s.Features), Label: s.Label}
	}
	k := maxK
	if k >= len(scaled) {
		k = len(scaled) - 1
	}
	if k < 1 {
		k = 1
	}
	return &knnModel{k: k, sampleCount: len(samples), scaler: scaler, scaled: scaled}
}

// probability scores a raw feature slice: scale, find the k nearest training
// vectors, and return the weight share of the positive class, with weight
// 1/(distance+eps) so closer neighbours dominate.
func (m *knnModel) probability(features []float64) float64 {
	scaled := m.scaler.Transform(features)

	type pair struct {
		dist  float64
		label int
	}
	distances := make([]pair, len(m.scaled))
	for i, s := range m.scaled {
		distances[i] = pair{dist: euclideanDistance(scaled, s.Features), label: s.Label}
	}
	sort.Slice(distances, func(i, j int) bool { return distances[i].dist < distances[j].dist })

	k := m.k
	if k > len(distances) {
		k = len(distances)
	}

	var totalWeight, shotWeight float64
	for _, neighbour := range distances[:k] {
		weight := 1.0 / (neighbour.dist + 1e-9)
		totalWeight += weight
		if neighbour.label == labelShot {
			shotWeight += weight
		}
	}
	if totalWeight == 0 {
		return 0
	}
	return shotWeight / totalWeight
}

func euclideanDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// classifyHeuristic scores with the hand-tuned rule table. Contributions are
// independent and cumulative; the result is clamped to [0, 1].
func classifyHeuristic(f FeatureVector) float64 {
	score := 0.0

	// Impulsive sounds have a high crest factor (>4 is typical for impacts).
	switch {
	case f.CrestFactor > 6:
		score += 0.25
	case f.CrestFactor > 4:
		score += 0.15
	case f.CrestFactor > 3:
		score += 0.05
	}

	// A club strike concentrates energy in the 2-6 kHz band.
	switch {
	case f.ImpactRatio > 0.3:
		score += 0.25
	case f.ImpactRatio > 0.15:
		score += 0.15
	case f.ImpactRatio > 0.08:
		score += 0.05
	}

	// Impacts rise fast (<30 samples at 44.1 kHz is under a millisecond).
	switch {
	case f.RiseTime < 30:
		score += 0.20
	case f.RiseTime < 80:
		score += 0.10
	case f.RiseTime < 150:
		score += 0.05
	}

	// Moderate zero-crossing rate.
	if f.ZCR > 0.05 && f.ZCR < 0.35 {
		score += 0.10
	}

	// Impacts typically centre between 1.5 and 5 kHz.
	if f.SpectralCentroid > 1500 && f.SpectralCentroid < 5000 {
		score += 0.15
	} else if f.SpectralCentroid > 800 && f.SpectralCentroid < 7000 {
		score += 0.05
	}

	// Low-frequency dominance points at voices or wind, not a strike.
	if f.Energy0_500 > 0.7 {
		score -= 0.15
	}

	return math.Max(0.0, math.Min(1.0, score))
}

// loadModelBundle reads and validates a persisted bundle. os.ErrNotExist is
// passed through so the caller can distinguish absence from corruption.
func loadModelBundle(path string) (*knnModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bundle ModelBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("unable to parse model bundle: %w", err)
	}
	if bundle.Kind != modelKindKNN {
		return nil, fmt.Errorf("unsupported model kind %q", bundle.Kind)
	}
	if bundle.Scaler == nil || len(bundle.Scaler.Mean) == 0 {
		return nil, errors.New("model bundle missing scaler")
	}
	if len(bundle.Scaler.Stddev) != len(bundle.Scaler.Mean) {
		return nil, fmt.Errorf("scaler has %d stddev values for %d means",
			len(bundle.Scaler.Stddev), len(bundle.Scaler.Mean))
	}
	if len(bundle.Samples) == 0 {
		return nil, errors.New("model bundle has no samples")
	}
	for i, s := range bundle.Samples {
		if len(s.Features) != len(bundle.Scaler.Mean) {
			return nil, fmt.Errorf("sample %d has %d features, scaler expects %d",
				i, len(s.Features), len(bundle.Scaler.Mean))
		}
	}

	maxK := bundle.K
	if maxK <= 0 {
		maxK = defaultNeighbours
	}
	model := newKNNModel(bundle.Samples, bundle.Scaler, maxK)
	model.sampleCount = bundle.SampleCount
	return model, nil
}

// saveModelBundle writes the bundle to a temp file and renames it into place
// so readers never observe a partially-written model.
func saveModelBundle(path string, bundle ModelBundle) error {
	if path == "" {
		return errors.New("model path not set")
	}
	if err := utils.CreateFolder(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model bundle: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write model bundle: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename model bundle: %w", err)
	}
	return nil
}
