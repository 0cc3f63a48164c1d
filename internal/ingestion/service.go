package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/reiteradas/internal/analytics"
	"github.com/rpattn/reiteradas/internal/catalog"
	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/progress"
	"github.com/rpattn/reiteradas/internal/repository"
	"github.com/rpattn/reiteradas/internal/sheet"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service turns uploaded spreadsheets into ingestion runs and serves the
// read side of the dashboard.
type Service struct {
	records  repository.RecordRepository
	uploads  repository.UploadRepository
	pipeline *Pipeline
	tracker  progress.Tracker
	log      *logrus.Logger

	uploadTimeout time.Duration
	newID         func() string
	now           func() time.Time

	wg sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithTracker sets where asynchronous uploads report their status.
func WithTracker(tracker progress.Tracker) Option {
	return func(s *Service) {
		if tracker != nil {
			s.tracker = tracker
		}
	}
}

func WithUploadTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.uploadTimeout = timeout
		}
	}
}

func WithServiceLogger(log *logrus.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithIDGenerator replaces the generator of upload ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService creates a service over one store.
func NewService(store repository.Store, pipeline *Pipeline, opts ...Option) *Service {
	service := &Service{
		records:       store.Records(),
		uploads:       store.Uploads(),
		pipeline:      pipeline,
		tracker:       progress.NewMemoryTracker(time.Hour),
		log:           logrus.StandardLogger(),
		uploadTimeout: 30 * time.Minute,
		newID:         func() string { return uuid.NewString() },
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.pipeline == nil {
		service.pipeline = NewPipeline(service.records, service.uploads, WithLogger(service.log))
	}
	return service
}

// Request describes one uploaded spreadsheet.
type Request struct {
	// UploadID is generated when empty.
	UploadID string
	// Territory is the run label: a territory, MISTO or empty.
	Territory  string
	FileName   string
	FileType   string
	UploadedBy string
	Data       io.Reader
}

// Prepared is a parsed upload ready for the pipeline.
type Prepared struct {
	Metadata domain.UploadMetadata
	Records  []domain.Record
	// DroppedRows counts rows discarded by the parser.
	DroppedRows int
}

// Prepare reads and parses the upload and builds its metadata. Any
// failure is a *ValidationError.
func (s *Service) Prepare(req Request) (Prepared, error) {
	if req.Data == nil {
		return Prepared{}, &ValidationError{Field: "file", Reason: "is required"}
	}
	if _, ok := domain.ParseUploadLabel(req.Territory); !ok {
		return Prepared{}, &ValidationError{Field: "regional", Reason: fmt.Sprintf("%q is not a known territory", req.Territory)}
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return Prepared{}, &ValidationError{Field: "file", Reason: "could not be read", Err: err}
	}
	table, err := sheet.Parse(req.FileName, payload)
	if err != nil {
		return Prepared{}, &ValidationError{Field: "file", Reason: err.Error(), Err: err}
	}

	uploadID := strings.TrimSpace(req.UploadID)
	if uploadID == "" {
		uploadID = s.newID()
	}
	fileType := strings.TrimSpace(req.FileType)
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(req.FileName)), ".")
	}

	return Prepared{
		Metadata: domain.UploadMetadata{
			UploadID:   uploadID,
			Territory:  domain.Territory(strings.TrimSpace(req.Territory)),
			FileName:   filepath.Base(req.FileName),
			FileSize:   int64(len(payload)),
			FileType:   fileType,
			Columns:    table.Headers,
			StartedAt:  s.now().UTC(),
			UploadedBy: strings.TrimSpace(req.UploadedBy),
		},
		Records:     table.Records,
		DroppedRows: table.DroppedRows,
	}, nil
}

// Ingest parses the upload and runs the pipeline to completion.
func (s *Service) Ingest(ctx context.Context, req Request, onProgress domain.ProgressFunc) domain.IngestionOutcome {
	prepared, err := s.Prepare(req)
	if err != nil {
		return domain.IngestionOutcome{UploadID: req.UploadID, Error: err.Error(), Err: err}
	}
	return s.pipeline.Ingest(ctx, prepared.Records, prepared.Metadata, onProgress)
}

// Upload parses the upload synchronously and runs the pipeline in the
// background. The returned id can be polled with Status.
func (s *Service) Upload(ctx context.Context, req Request) (string, error) {
	prepared, err := s.Prepare(req)
	if err != nil {
		return "", err
	}
	uploadID := prepared.Metadata.UploadID
	if err := s.tracker.Start(ctx, uploadID); err != nil {
		return "", fmt.Errorf("failed to track upload: %w", err)
	}

	log := s.log.WithField("uploadId", uploadID)
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.uploadTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		outcome := s.pipeline.Ingest(runCtx, prepared.Records, prepared.Metadata, func(p domain.Progress) {
			if err := s.tracker.Update(runCtx, uploadID, p); err != nil {
				log.WithError(err).Warn("failed to record upload progress")
			}
		})
		// The run context may be spent; the final status must still land.
		finishCtx, finishCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer finishCancel()
		if err := s.tracker.Finish(finishCtx, uploadID, outcome); err != nil {
			log.WithError(err).Error("failed to record upload outcome")
		}
	}()

	log.WithFields(logrus.Fields{"rows": len(prepared.Records), "file": prepared.Metadata.FileName}).Info("upload accepted")
	return uploadID, nil
}

// Status returns the tracked status of an upload.
func (s *Service) Status(ctx context.Context, uploadID string) (domain.UploadStatus, error) {
	return s.tracker.Get(ctx, strings.TrimSpace(uploadID))
}

// Wait blocks until every background upload has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) DeleteUpload(ctx context.Context, uploadID string) domain.DeleteResult {
	return s.pipeline.DeleteUpload(ctx, uploadID)
}

func (s *Service) ClearAll(ctx context.Context) domain.ClearResult {
	return s.pipeline.ClearAll(ctx)
}

// Records returns the records of one territory, newest DATA first. A
// filter without a territory matches nothing.
func (s *Service) Records(ctx context.Context, filter domain.RecordFilter) ([]domain.RecordDocument, error) {
	territory, ok := domain.NormalizeTerritory(string(filter.Territory))
	if !ok {
		return []domain.RecordDocument{}, nil
	}
	filter.Territory = territory
	docs, err := s.records.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	if docs == nil {
		docs = []domain.RecordDocument{}
	}
	return docs, nil
}

// History lists ledger entries newest first. Stores that cannot order the
// query without an index are read unordered and sorted here.
func (s *Service) History(ctx context.Context, territory domain.Territory) ([]domain.UploadEntry, error) {
	if territory != "" {
		label, ok := domain.ParseUploadLabel(string(territory))
		if !ok {
			return nil, &ValidationError{Field: "regional", Reason: fmt.Sprintf("%q is not a known territory", territory)}
		}
		territory = label
	}

	entries, err := s.uploads.List(ctx, territory, domain.DefaultQueryLimit)
	if errors.Is(err, repository.ErrIndexRequired) {
		s.log.WithField("regional", territory).Warn("ordered upload history needs an index, sorting in memory")
		entries, err = s.uploads.ListUnordered(ctx, territory, domain.DefaultQueryLimit)
		if err == nil {
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].UploadedAt.After(entries[j].UploadedAt)
			})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	if entries == nil {
		entries = []domain.UploadEntry{}
	}
	return entries, nil
}

// Rankings ranks the filtered records by field.
func (s *Service) Rankings(ctx context.Context, filter domain.RecordFilter, field string, opts analytics.Options) ([]analytics.Entry, error) {
	field = sheet.CanonicalColumn(field)
	if field == "" {
		field = domain.FieldElemento
	}
	if !analytics.IsRankable(field) {
		return nil, &ValidationError{Field: "field", Reason: fmt.Sprintf("%q cannot be ranked", field)}
	}
	docs, err := s.Records(ctx, filter)
	if err != nil {
		return nil, err
	}
	return analytics.Rank(docs, field, opts), nil
}

// Feeders counts the filtered records per catalog feeder of the territory.
func (s *Service) Feeders(ctx context.Context, filter domain.RecordFilter) ([]catalog.FeederCount, error) {
	docs, err := s.Records(ctx, filter)
	if err != nil {
		return nil, err
	}
	territory, _ := domain.NormalizeTerritory(string(filter.Territory))
	return catalog.CountByFeeder(territory, docs), nil
}
