package trigger

// Feature scaling for the learned classifier.
//
// Raw feature magnitudes differ by orders of magnitude (spectral centroid in
// the thousands of Hz, band energies in [0, 1]), so distances computed on raw
// vectors would be dominated by the frequency features. Each dimension is
// standardized to mean 0 / stddev 1 before any distance is taken; the fitted
// parameters are persisted inside the model bundle so classification applies
// the exact transform seen at training time.

import (
	"errors"
	"math"
)

// FeatureScaler applies z-score standardization per feature dimension.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// NewFeatureScalerFromSamples fits scaling parameters over a labeled set.
func NewFeatureScalerFromSamples(samples []LabeledVector) (*FeatureScaler, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples provided")
	}
	dims := len(samples[0].Features)
	if dims == 0 {
		return nil, errors.New("samples have no features")
	}

	mean := make([]float64, dims)
	for _, s := range samples {
		if len(s.Features) != dims {
			return nil, errors.New("inconsistent feature dimensions")
		}
		for i, v := range s.Features {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(samples))
	}

	stddev := make([]float64, dims)
	for _, s := range samples {
		for i, v := range s.Features {
			diff := v - mean[i]
			stddev[i] += diff * diff
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(samples)))
		// constant dimensions would otherwise divide by zero
		if stddev[i] < 1e-10 {
			stddev[i] = 1.0
		}
	}

	return &FeatureScaler{Mean: mean, Stddev: stddev}, nil
}

// Transform standardizes a feature vector. Vectors whose dimensionality does
// not match the fitted parameters are returned unchanged, as is everything
// when the parameters themselves are inconsistent (a malformed persisted
// scaler must never index out of range here).
func (fs *FeatureScaler) Transform(features []float64) []float64 {
	if len(features) != len(fs.Mean) || len(fs.Stddev) != len(fs.Mean) {
		return features
	}
	scaled := make([]float64, len(features))
	for i, v := range features {
		scaled[i] = (v - fs.Mean[i]) / fs.Stddev[i]
	}
	return scaled
}
