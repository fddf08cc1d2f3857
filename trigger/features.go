package trigger

// Feature extraction for impact detection.
//
// One classification window (a few concatenated chunks, ~93 ms at the default
// configuration) is reduced to 12 features describing loudness, shape and
// spectral content:
//
// Temporal:
//   - RMS: overall signal strength
//   - Peak: maximum absolute amplitude
//   - Crest factor: peak/RMS, high for impulsive sounds
//   - Zero crossing rate: sign changes per sample
//   - Rise time: samples from 10% to 90% of peak, short for sharp impacts
//
// Spectral (from the real FFT of the full window):
//   - Spectral centroid: magnitude-weighted mean frequency
//   - Spectral rolloff: frequency containing 85% of the squared-magnitude energy
//   - Four band energies (0-500 Hz, 500-2k, 2k-6k, 6k-Nyquist), each the
//     squared-magnitude energy in the band normalized by total energy
//   - Impact ratio: the 2-6 kHz band over total energy, where a club striking
//     a ball concentrates its energy
//
// The extractor is a pure function of its input apart from the configured
// sample rate; calling it twice on the same window yields identical output.

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FeatureExtractor converts a window of normalized samples into a
// FeatureVector. Safe for concurrent use.
type FeatureExtractor struct {
	sampleRate int
}

// NewFeatureExtractor returns an extractor for the given PCM sample rate.
func NewFeatureExtractor(sampleRate int) *FeatureExtractor {
	return &FeatureExtractor{sampleRate: sampleRate}
}

// Extract computes the 12 features for one window. Samples are expected to be
// normalized to [-1, 1]. Empty input yields an all-zero vector, never an
// error.
func (e *FeatureExtractor) Extract(samples []float64) FeatureVector {
	n := len(samples)
	if n == 0 {
		return FeatureVector{}
	}

	rms := rootMeanSquare(samples)
	peak := peakAmplitude(samples)

	crest := 0.0
	if rms > 1e-10 {
		crest = peak / rms
	}

	zcr := zeroCrossingRate(samples)

	magnitude, freqs := realSpectrum(samples, e.sampleRate)

	totalEnergy := 0.0
	var magSum float64
	for _, mag := range magnitude {
		totalEnergy += mag * mag
		magSum += mag
	}
	// floor avoids division by zero on silent windows
	normEnergy := totalEnergy
	if normEnergy < 1e-20 {
		normEnergy = 1e-20
	}

	centroid := 0.0
	if magSum > 1e-10 {
		var weighted float64
		for i, mag := range magnitude {
			weighted += freqs[i] * mag
		}
		centroid = weighted / magSum
	}

	rolloff := spectralRolloff(magnitude, freqs, totalEnergy, 0.85)

	e0500 := bandEnergy(magnitude, freqs, 0, 500)
	e5002k := bandEnergy(magnitude, freqs, 500, 2000)
	e2k6k := bandEnergy(magnitude, freqs, 2000, 6000)
	e6kPlus := bandEnergy(magnitude, freqs, 6000, float64(e.sampleRate)/2)

	return FeatureVector{
		RMS:              rms,
		Peak:             peak,
		CrestFactor:      crest,
		ZCR:              zcr,
		SpectralCentroid: centroid,
		SpectralRolloff:  rolloff,
		Energy0_500:      e0500 / normEnergy,
		Energy500_2k:     e5002k / normEnergy,
		Energy2k6k:       e2k6k / normEnergy,
		Energy6kPlus:     e6kPlus / normEnergy,
		ImpactRatio:      e2k6k / normEnergy,
		RiseTime:         riseTime(samples, peak),
	}
}

func rootMeanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func peakAmplitude(samples []float64) float64 {
	var peak float64
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// zeroCrossingRate counts transitions between the three-valued sign of
// consecutive samples (so touching zero counts as a change) and divides by
// the window length.
func zeroCrossingRate(samples []float64) float64 {
	if len(samples) <= 1 {
		return 0
	}
	var count float64
	prev := sign(samples[0])
	for _, v := range samples[1:] {
		s := sign(v)
		if s != prev {
			count++
		}
		prev = s
	}
	return count / float64(len(samples))
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// realSpectrum computes the magnitude spectrum of the full window via a
// real-input FFT, together with the bin centre frequencies 0..sampleRate/2.
// No padding is applied: bin i sits at i*sampleRate/n.
func realSpectrum(samples []float64, sampleRate int) (magnitude, freqs []float64) {
	n := len(samples)
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, samples)

	magnitude = make([]float64, len(coeffs))
	freqs = make([]float64, len(coeffs))
	for i, c := range coeffs {
		magnitude[i] = math.Hypot(real(c), imag(c))
		freqs[i] = float64(i) * float64(sampleRate) / float64(n)
	}
	return magnitude, freqs
}

// spectralRolloff returns the frequency at which the cumulative
// squared-magnitude energy first reaches the threshold fraction of the total,
// or 0 when the window carries no energy.
func spectralRolloff(magnitude, freqs []float64, totalEnergy, threshold float64) float64 {
	if len(magnitude) == 0 || totalEnergy <= 1e-20 {
		return 0
	}
	target := threshold * totalEnergy
	var cumulative float64
	for i, mag := range magnitude {
		cumulative += mag * mag
		if cumulative >= target {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

// bandEnergy sums squared magnitude over bins with low <= freq < high.
func bandEnergy(magnitude, freqs []float64, low, high float64) float64 {
	var sum float64
	for i, mag := range magnitude {
		if freqs[i] >= low && freqs[i] < high {
			sum += mag * mag
		}
	}
	return sum
}

// riseTime measures how many samples the envelope takes to climb from 10% to
// 90% of the window peak, floored at 0. A silent window yields 0.
func riseTime(samples []float64, peak float64) float64 {
	if peak <= 0 {
		return 0
	}
	threshold10 := peak * 0.1
	threshold90 := peak * 0.9

	idx10 := -1
	idx90 := -1
	for i, v := range samples {
		a := math.Abs(v)
		if idx10 < 0 && a >= threshold10 {
			idx10 = i
		}
		if a >= threshold90 {
			idx90 = i
			break
		}
	}
	if idx10 < 0 {
		idx10 = 0
	}
	if idx90 < 0 {
		idx90 = len(samples)
	}
	rise := idx90 - idx10
	if rise < 0 {
		return 0
	}
	return float64(rise)
}
