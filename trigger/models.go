package trigger

import "time"

// FeatureVector holds the 12 named features computed from one classification
// window. Every field is always populated; degenerate (empty or silent) input
// yields zeros rather than NaNs.
//
// ImpactRatio carries the same value as Energy2k6k: both names are part of the
// persisted metadata format consumed by existing tooling, so the duplication
// is deliberate.
type FeatureVector struct {
	RMS              float64 `json:"rms"`
	Peak             float64 `json:"peak"`
	CrestFactor      float64 `json:"crest_factor"`
	ZCR              float64 `json:"zcr"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	SpectralRolloff  float64 `json:"spectral_rolloff"`
	Energy0_500      float64 `json:"energy_0_500"`
	Energy500_2k     float64 `json:"energy_500_2k"`
	Energy2k6k       float64 `json:"energy_2k_6k"`
	Energy6kPlus     float64 `json:"energy_6k_plus"`
	ImpactRatio      float64 `json:"impact_ratio"`
	RiseTime         float64 `json:"rise_time"`
}

// FeatureCount is the dimensionality of a FeatureVector.
const FeatureCount = 12

// FeatureKeys lists the metadata keys in canonical order; Slice follows it.
var FeatureKeys = [FeatureCount]string{
	"rms", "peak", "crest_factor", "zcr",
	"spectral_centroid", "spectral_rolloff",
	"energy_0_500", "energy_500_2k", "energy_2k_6k", "energy_6k_plus",
	"impact_ratio", "rise_time",
}

// Slice returns the features in canonical key order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.RMS, f.Peak, f.CrestFactor, f.ZCR,
		f.SpectralCentroid, f.SpectralRolloff,
		f.Energy0_500, f.Energy500_2k, f.Energy2k6k, f.Energy6kPlus,
		f.ImpactRatio, f.RiseTime,
	}
}

// TriggerEvent describes one detected impact, delivered to trigger
// subscribers together with the window that produced it.
type TriggerEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	Confidence float64       `json:"confidence"`
	Level      float64       `json:"level"`
	Threshold  float64       `json:"threshold"`
	Features   FeatureVector `json:"features"`
}

// SampleMeta is the JSON metadata record persisted next to each training
// snippet. Timestamp is Unix milliseconds and doubles as the sample identity
// used for relabeling.
type SampleMeta struct {
	Timestamp  int64         `json:"timestamp"`
	Confidence float64       `json:"confidence"`
	Features   FeatureVector `json:"features"`
	Label      int           `json:"label"`
	Threshold  float64       `json:"threshold"`
}

// LabeledVector pairs an extracted feature vector with its binary label
// (1 = shot, 0 = not a shot).
type LabeledVector struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// ModelBundle is the serialized form of a trained classifier: the labeled
// sample set, the scaler fitted on it, and the neighbour count. It is written
// atomically by Retrain and read once at Classifier construction.
type ModelBundle struct {
	Kind        string          `json:"kind"`
	K           int             `json:"k"`
	SampleCount int             `json:"sampleCount"`
	Scaler      *FeatureScaler  `json:"scaler"`
	Samples     []LabeledVector `json:"samples"`
}

// Config carries the tunable parameters for the trigger pipeline. It is
// passed explicitly to constructors; there is no package-level configuration.
type Config struct {
	// SampleRate is the PCM sample rate the chunk source delivers.
	SampleRate int
	// ChunkSize is the number of samples per chunk from the source.
	ChunkSize int
	// WindowChunks is how many consecutive chunks form one classification
	// window. The window duration is WindowChunks*ChunkSize/SampleRate
	// seconds (~93 ms at the 44100/1024/4 defaults); changing the sample
	// rate or chunk size changes the duration accordingly.
	WindowChunks int
	// Threshold is the initial trigger level threshold in [0, 1].
	Threshold float64
	// TrainingDir is where training snippets and metadata are persisted.
	TrainingDir string
	// ModelPath is the serialized classifier bundle location.
	ModelPath string
}

// DefaultConfig mirrors the reference capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:   44100,
		ChunkSize:    1024,
		WindowChunks: 4,
		Threshold:    0.3,
		TrainingDir:  "training_data",
		ModelPath:    "training_data/audio_classifier.json",
	}
}
