package progress

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/reiteradas/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerLifecycle(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker(0)

	_, err := tracker.Get(ctx, "U")
	assert.ErrorIs(t, err, ErrUnknownUpload)

	require.NoError(t, tracker.Start(ctx, "U"))
	status, err := tracker.Get(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadRunning, status.State)

	require.NoError(t, tracker.Update(ctx, "U", domain.Progress{Batch: 1, TotalBatches: 3, Saved: 200, Total: 450, Percent: 44}))
	status, err = tracker.Get(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 44, status.Progress.Percent)
	assert.Nil(t, status.Outcome)

	require.NoError(t, tracker.Finish(ctx, "U", domain.IngestionOutcome{UploadID: "U", Count: 200, Error: "boom"}))
	status, err = tracker.Get(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadFailed, status.State)
	require.NotNil(t, status.Outcome)
	assert.Equal(t, 200, status.Outcome.Count)
	assert.Equal(t, 44, status.Progress.Percent)
}

func TestMemoryTrackerEvictsFinished(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewMemoryTracker(time.Hour)
	tracker.now = func() time.Time { return now }

	require.NoError(t, tracker.Start(ctx, "done"))
	require.NoError(t, tracker.Finish(ctx, "done", domain.IngestionOutcome{Success: true}))
	require.NoError(t, tracker.Start(ctx, "running"))

	now = now.Add(2 * time.Hour)
	_, err := tracker.Get(ctx, "done")
	assert.ErrorIs(t, err, ErrUnknownUpload)
	status, err := tracker.Get(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadRunning, status.State)
}

func TestRedisTrackerEncoding(t *testing.T) {
	tracker := NewRedisTrackerWithClient(nil, DefaultRedisConfig("localhost:6379"))
	assert.Equal(t, "reiteradas:uploads:abc", tracker.key("abc"))

	status := apply(domain.UploadStatus{}, "abc", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), &domain.Progress{Batch: 2, Percent: 89}, nil)
	status = apply(status, "abc", status.UpdatedAt, nil, &domain.IngestionOutcome{UploadID: "abc", Success: true, Count: 450})

	data, err := encodeStatus(status)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"succeeded"`)
	assert.Contains(t, string(data), `"progress":89`)

	decoded, err := decodeStatus(data)
	require.NoError(t, err)
	assert.Equal(t, status.UploadID, decoded.UploadID)
	assert.Equal(t, domain.UploadSucceeded, decoded.State)
	assert.Equal(t, 450, decoded.Outcome.Count)
	assert.True(t, status.UpdatedAt.Equal(decoded.UpdatedAt))

	_, err = decodeStatus([]byte("{"))
	assert.Error(t, err)
}

func TestNewRedisTrackerFailsWithoutServer(t *testing.T) {
	cfg := DefaultRedisConfig("127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond
	_, err := NewRedisTracker(context.Background(), cfg)
	assert.Error(t, err)
}
