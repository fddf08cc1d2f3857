package models

import (
	"encoding/json"
	"time"
)

// TriggerRecord is a stored trigger event as exposed by the event log and the
// HTTP API. Features holds the 12 named feature values as raw JSON so the log
// stays readable by external tooling without importing the trigger package.
type TriggerRecord struct {
	ID         int64           `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Confidence float64         `json:"confidence"`
	Level      float64         `json:"level"`
	Threshold  float64         `json:"threshold"`
	Features   json.RawMessage `json:"features"`
	SampleBase string          `json:"sampleBase,omitempty"`
}

// StatusReport summarises the pipeline state for the host UI.
type StatusReport struct {
	Listening           bool    `json:"listening"`
	ClassifierMode      string  `json:"classifierMode"`
	TrainingSampleCount int     `json:"trainingSampleCount"`
	TotalTriggers       int     `json:"totalTriggers"`
	Threshold           float64 `json:"threshold"`
	SampleRate          int     `json:"sampleRate"`
	ChunkSize           int     `json:"chunkSize"`
	WindowChunks        int     `json:"windowChunks"`
}
