package domain

import "time"

// ModelArtifact is a trained logistic scoring model.
// The pipeline treats it as opaque; only the scorer reads the fields.
type ModelArtifact struct {
	Version string `json:"version"`

	// DeviceCodes encodes device labels seen during training.
	DeviceCodes map[string]int `json:"device_codes"`

	// Weights apply to amount, hour, day of week and device code, in that order.
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Threshold float64   `json:"threshold"`

	// Feature scaling fitted on the training set.
	Means  []float64 `json:"means"`
	Scales []float64 `json:"scales"`

	TrainedAt time.Time `json:"trained_at"`
	Samples   int       `json:"samples"`
}

// FeatureCount is the length of a scorer feature vector.
const FeatureCount = 4

// UnseenDeviceCode is the device code for labels outside the encoder.
const UnseenDeviceCode = -1

// Valid reports whether the artifact can be used for scoring.
func (a *ModelArtifact) Valid() bool {
	if a == nil || len(a.Weights) != FeatureCount {
		return false
	}
	if len(a.Means) != FeatureCount || len(a.Scales) != FeatureCount {
		return false
	}
	return a.Threshold > 0 && a.Threshold < 1
}
