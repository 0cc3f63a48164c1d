package domain

import (
	"math"
	"time"
)

// Progress is reported after every committed batch and before every retry.
type Progress struct {
	Batch        int  `json:"batch"`
	TotalBatches int  `json:"totalBatches"`
	Saved        int  `json:"saved"`
	Total        int  `json:"total"`
	Percent      int  `json:"progress"`
	Retrying     bool `json:"retrying"`
	RetryCount   int  `json:"retryCount"`
	NextRetryIn  int  `json:"nextRetryIn"` // seconds
}

// ProgressFunc receives pipeline progress. It runs on the pipeline goroutine.
type ProgressFunc func(Progress)

// Percentage rounds saved/total to a 0-100 value.
func Percentage(saved, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(saved) / float64(total) * 100))
}

// UploadState is the lifecycle state of a tracked upload.
type UploadState string

const (
	UploadRunning   UploadState = "running"
	UploadSucceeded UploadState = "succeeded"
	UploadFailed    UploadState = "failed"
)

// UploadStatus is the pollable view of an upload in flight or finished.
type UploadStatus struct {
	UploadID  string            `json:"uploadId"`
	State     UploadState       `json:"state"`
	Progress  Progress          `json:"progress"`
	Outcome   *IngestionOutcome `json:"outcome,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
