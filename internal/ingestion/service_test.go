package ingestion

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/reiteradas/internal/analytics"
	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/progress"
	"github.com/rpattn/reiteradas/internal/repository/memory"
	"github.com/rpattn/reiteradas/internal/sheet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uploadCSV = `INCIDENCIA,CAUSA,ALIMENT.,DATA,ELEMENTO,CONJUNTO
I1,ARVORE,TNG01S1,05/03/2024,T-1,TIANGUA
I2,ARVORE,TNG01S1,06/03/2024,T-1,TIANGUA
I3,VENTO,TNG01S2,07/03/2024,F-2,TIANGUA
,VENTO,TNG01S2,07/03/2024,F-2,TIANGUA
`

func newTestService(store *memory.Store, opts ...Option) *Service {
	sleeps := &recordedSleeps{}
	pipeline := NewPipeline(store.Records(), store.Uploads(), WithSleep(sleeps.sleep), WithLogger(quietLogger()))
	opts = append([]Option{
		WithServiceLogger(quietLogger()),
		WithIDGenerator(func() string { return "generated" }),
	}, opts...)
	return NewService(store, pipeline, opts...)
}

func TestServiceIngestParsesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	service := newTestService(store)

	outcome := service.Ingest(ctx, Request{
		Territory:  "norte",
		FileName:   "uploads/falhas.csv",
		UploadedBy: "ops@example.com",
		Data:       strings.NewReader(uploadCSV),
	}, nil)

	require.True(t, outcome.Success, outcome.Error)
	assert.Equal(t, "generated", outcome.UploadID)
	assert.Equal(t, 3, outcome.Count)

	entry, err := store.Uploads().Get(ctx, "generated")
	require.NoError(t, err)
	assert.Equal(t, "falhas.csv", entry.FileName)
	assert.Equal(t, "csv", entry.FileType)
	assert.Equal(t, int64(len(uploadCSV)), entry.FileSize)
	assert.Equal(t, 6, entry.TotalColumns)
	assert.Equal(t, "ALIMENT.", entry.Columns[2])
	assert.Equal(t, "ops@example.com", entry.UploadedBy)
	assert.Equal(t, domain.TerritoryNorte, entry.Territory)
	assert.NotEmpty(t, entry.StartedAt)

	docs, err := service.Records(ctx, domain.RecordFilter{Territory: "Norte"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "2024-03-07", docs[0].Fields.Get(domain.FieldData))
}

func TestServiceIngestRejectsBadInput(t *testing.T) {
	service := newTestService(memory.New())

	outcome := service.Ingest(context.Background(), Request{
		Territory: "NORTE",
		FileName:  "falhas.csv",
		Data:      strings.NewReader("INCIDENCIA\nI1\n"),
	}, nil)
	assert.False(t, outcome.Success)
	var validation *ValidationError
	require.ErrorAs(t, outcome.Err, &validation)
	var missing *sheet.MissingColumnsError
	assert.ErrorAs(t, outcome.Err, &missing)

	outcome = service.Ingest(context.Background(), Request{Territory: "SUL", FileName: "a.csv", Data: strings.NewReader(uploadCSV)}, nil)
	assert.ErrorAs(t, outcome.Err, &validation)

	outcome = service.Ingest(context.Background(), Request{Territory: "NORTE", FileName: "a.csv"}, nil)
	assert.ErrorAs(t, outcome.Err, &validation)
}

func TestServiceUploadTracksStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tracker := progress.NewMemoryTracker(0)
	service := newTestService(store, WithTracker(tracker))

	uploadID, err := service.Upload(ctx, Request{
		UploadID:  "U-1",
		Territory: "NORTE",
		FileName:  "falhas.csv",
		Data:      strings.NewReader(uploadCSV),
	})
	require.NoError(t, err)
	assert.Equal(t, "U-1", uploadID)

	service.Wait()
	status, err := service.Status(ctx, "U-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadSucceeded, status.State)
	assert.Equal(t, 100, status.Progress.Percent)
	require.NotNil(t, status.Outcome)
	assert.Equal(t, 3, status.Outcome.Count)

	_, err = service.Status(ctx, "nope")
	assert.ErrorIs(t, err, progress.ErrUnknownUpload)
}

func TestServiceUploadSurvivesCancelledRequest(t *testing.T) {
	store := memory.New()
	service := newTestService(store)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := service.Upload(ctx, Request{UploadID: "U", Territory: "NORTE", FileName: "f.csv", Data: strings.NewReader(uploadCSV)})
	require.NoError(t, err)
	cancel()
	service.Wait()

	assert.Equal(t, 3, store.RecordCount())
}

func TestServiceHistoryFallsBackWithoutIndex(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New(memory.WithoutOrderedUploads(), memory.WithClock(func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}))
	service := newTestService(store)

	for _, id := range []string{"b", "a", "c"} {
		outcome := service.Ingest(ctx, Request{UploadID: id, Territory: "NORTE", FileName: "f.csv", Data: strings.NewReader(uploadCSV)}, nil)
		require.True(t, outcome.Success, outcome.Error)
	}

	entries, err := service.History(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{entries[0].UploadID, entries[1].UploadID, entries[2].UploadID})

	entries, err = service.History(ctx, domain.TerritoryAtlantico)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = service.History(ctx, "SUL")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestServiceRecordsWithoutTerritoryIsEmpty(t *testing.T) {
	service := newTestService(memory.New())
	docs, err := service.Records(context.Background(), domain.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NotNil(t, docs)
}

func TestServiceRankingsAndFeeders(t *testing.T) {
	ctx := context.Background()
	service := newTestService(memory.New())
	outcome := service.Ingest(ctx, Request{Territory: "NORTE", FileName: "f.csv", Data: strings.NewReader(uploadCSV)}, nil)
	require.True(t, outcome.Success, outcome.Error)

	filter := domain.RecordFilter{Territory: domain.TerritoryNorte}
	ranking, err := service.Rankings(ctx, filter, "elemento", analytics.Options{})
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, analytics.Entry{Name: "T-1", Count: 2}, ranking[0])

	ranking, err = service.Rankings(ctx, filter, "Aliment.", analytics.Options{Top: 1})
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "TNG01S1", ranking[0].Name)

	_, err = service.Rankings(ctx, filter, "DATA", analytics.Options{})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	counts, err := service.Feeders(ctx, filter)
	require.NoError(t, err)
	byFeeder := map[string]int{}
	for _, c := range counts {
		byFeeder[c.Feeder] = c.Count
	}
	assert.Equal(t, 2, byFeeder["TNG01S1"])
	assert.Equal(t, 1, byFeeder["TNG01S2"])
	assert.Equal(t, 0, byFeeder["SBU01S1"])
}

func TestServiceDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	service := newTestService(store)
	for _, id := range []string{"a", "b"} {
		require.True(t, service.Ingest(ctx, Request{UploadID: id, Territory: "NORTE", FileName: "f.csv", Data: strings.NewReader(uploadCSV)}, nil).Success)
	}

	deleted := service.DeleteUpload(ctx, "a")
	require.True(t, deleted.Success, deleted.Error)
	assert.Equal(t, 3, deleted.DeletedCount)

	cleared := service.ClearAll(ctx)
	require.True(t, cleared.Success, cleared.Error)
	assert.Equal(t, 3, cleared.DeletedData)
	assert.Equal(t, 1, cleared.DeletedUploads)
}
