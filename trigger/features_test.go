package trigger

import (
	"encoding/json"
	"math"
	"testing"
)

func TestExtractEmptyInputAllZeros(t *testing.T) {
	t.Parallel()

	extractor := NewFeatureExtractor(44100)
	features := extractor.Extract(nil)

	for i, v := range features.Slice() {
		if v != 0.0 {
			t.Errorf("feature %s = %v, want exactly 0.0 for empty input", FeatureKeys[i], v)
		}
	}
}

func TestExtractSilentInputWellDefined(t *testing.T) {
	t.Parallel()

	extractor := NewFeatureExtractor(44100)
	for _, n := range []int{1, 37, 1024, 4096} {
		features := extractor.Extract(make([]float64, n))

		if features.RMS != 0 {
			t.Errorf("n=%d: rms = %v, want 0", n, features.RMS)
		}
		if features.Peak != 0 {
			t.Errorf("n=%d: peak = %v, want 0", n, features.Peak)
		}
		for i, v := range features.Slice() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("n=%d: feature %s = %v, want finite", n, FeatureKeys[i], v)
			}
		}
	}
}

func TestExtractSineSpectralCentroid(t *testing.T) {
	t.Parallel()

	const (
		sampleRate = 44100
		freq       = 1000.0
		n          = 4410
	)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}

	features := NewFeatureExtractor(sampleRate).Extract(samples)

	if math.Abs(features.SpectralCentroid-freq) > 50 {
		t.Errorf("spectral centroid = %.1f Hz, want within 50 Hz of %.0f", features.SpectralCentroid, freq)
	}
	if features.SpectralRolloff < 900 || features.SpectralRolloff > 1200 {
		t.Errorf("spectral rolloff = %.1f Hz, want near 1 kHz for a pure tone", features.SpectralRolloff)
	}
}

func TestExtractImpulse(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 4096)
	samples[100] = 1.0

	features := NewFeatureExtractor(44100).Extract(samples)

	if features.CrestFactor <= 10 {
		t.Errorf("crest factor = %.2f, want > 10 for a single impulse", features.CrestFactor)
	}
	if features.RiseTime >= 5 {
		t.Errorf("rise time = %.0f, want < 5 for an instantaneous transient", features.RiseTime)
	}
	if features.Peak != 1.0 {
		t.Errorf("peak = %v, want 1.0", features.Peak)
	}
}

func TestExtractBandEnergiesNormalized(t *testing.T) {
	t.Parallel()

	const sampleRate = 44100
	samples := make([]float64, 4096)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 3000 * float64(i) / sampleRate)
	}

	features := NewFeatureExtractor(sampleRate).Extract(samples)

	sum := features.Energy0_500 + features.Energy500_2k + features.Energy2k6k + features.Energy6kPlus
	if math.Abs(sum-1.0) > 0.01 {
		t.Errorf("band energies sum to %.4f, want ~1.0", sum)
	}
	if features.Energy2k6k < 0.9 {
		t.Errorf("energy_2k_6k = %.4f, want dominant for a 3 kHz tone", features.Energy2k6k)
	}
	if features.ImpactRatio != features.Energy2k6k {
		t.Errorf("impact_ratio = %v, energy_2k_6k = %v; must be computed identically", features.ImpactRatio, features.Energy2k6k)
	}
}

func TestExtractZeroCrossingRate(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 100)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}

	features := NewFeatureExtractor(44100).Extract(samples)

	if math.Abs(features.ZCR-0.99) > 1e-9 {
		t.Errorf("zcr = %v, want 0.99 for a fully alternating signal", features.ZCR)
	}
}

func TestExtractHasAllTwelveKeys(t *testing.T) {
	t.Parallel()

	features := NewFeatureExtractor(44100).Extract(make([]float64, 256))
	data, err := json.Marshal(features)
	if err != nil {
		t.Fatalf("failed to marshal features: %v", err)
	}

	var asMap map[string]float64
	if err := json.Unmarshal(data, &asMap); err != nil {
		t.Fatalf("failed to unmarshal features: %v", err)
	}
	if len(asMap) != FeatureCount {
		t.Fatalf("serialized feature count = %d, want %d", len(asMap), FeatureCount)
	}
	for _, key := range FeatureKeys {
		if _, ok := asMap[key]; !ok {
			t.Errorf("missing feature key %q", key)
		}
	}
}

func TestExtractIdempotent(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 2048)
	for i := range samples {
		samples[i] = math.Sin(0.07*float64(i)) * math.Exp(-float64(i)/900)
	}

	extractor := NewFeatureExtractor(44100)
	first := extractor.Extract(samples)
	second := extractor.Extract(samples)

	if first != second {
		t.Errorf("repeated extraction differs:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}
