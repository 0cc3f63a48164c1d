// Package progress keeps the pollable status of uploads in flight.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rpattn/reiteradas/internal/domain"
)

// ErrUnknownUpload is returned for an upload id that was never tracked or
// has expired.
var ErrUnknownUpload = errors.New("unknown upload")

// Tracker records upload progress for status polling.
type Tracker interface {
	Start(ctx context.Context, uploadID string) error
	Update(ctx context.Context, uploadID string, p domain.Progress) error
	Finish(ctx context.Context, uploadID string, outcome domain.IngestionOutcome) error
	Get(ctx context.Context, uploadID string) (domain.UploadStatus, error)
}

// apply folds an event into a status. The zero status is treated as new.
func apply(status domain.UploadStatus, uploadID string, now time.Time, p *domain.Progress, outcome *domain.IngestionOutcome) domain.UploadStatus {
	status.UploadID = uploadID
	status.UpdatedAt = now
	if status.State == "" {
		status.State = domain.UploadRunning
	}
	if p != nil {
		status.Progress = *p
	}
	if outcome != nil {
		o := *outcome
		status.Outcome = &o
		status.State = domain.UploadFailed
		if o.Success {
			status.State = domain.UploadSucceeded
		}
	}
	return status
}

// MemoryTracker keeps statuses in process memory. Finished uploads are
// forgotten after the retention period.
type MemoryTracker struct {
	mu        sync.Mutex
	statuses  map[string]domain.UploadStatus
	retention time.Duration
	now       func() time.Time
}

// NewMemoryTracker creates a tracker; a zero retention keeps entries forever.
func NewMemoryTracker(retention time.Duration) *MemoryTracker {
	return &MemoryTracker{
		statuses:  make(map[string]domain.UploadStatus),
		retention: retention,
		now:       time.Now,
	}
}

func (t *MemoryTracker) Start(_ context.Context, uploadID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evict()
	t.statuses[uploadID] = apply(domain.UploadStatus{}, uploadID, t.now(), nil, nil)
	return nil
}

func (t *MemoryTracker) Update(_ context.Context, uploadID string, p domain.Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[uploadID] = apply(t.statuses[uploadID], uploadID, t.now(), &p, nil)
	return nil
}

func (t *MemoryTracker) Finish(_ context.Context, uploadID string, outcome domain.IngestionOutcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[uploadID] = apply(t.statuses[uploadID], uploadID, t.now(), nil, &outcome)
	return nil
}

func (t *MemoryTracker) Get(_ context.Context, uploadID string) (domain.UploadStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evict()
	status, ok := t.statuses[uploadID]
	if !ok {
		return domain.UploadStatus{}, ErrUnknownUpload
	}
	return status, nil
}

func (t *MemoryTracker) evict() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	for id, status := range t.statuses {
		if status.State != domain.UploadRunning && status.UpdatedAt.Before(cutoff) {
			delete(t.statuses, id)
		}
	}
}
