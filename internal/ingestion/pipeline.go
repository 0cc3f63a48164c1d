package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/metrics"
	"github.com/rpattn/reiteradas/internal/repository"

	"github.com/sirupsen/logrus"
)

// Config parameterizes batching, throttling and retries of the pipeline.
type Config struct {
	BatchSize      int           `mapstructure:"batch_size"`
	Throttle       time.Duration `mapstructure:"throttle"`
	DeletePageSize int           `mapstructure:"delete_page_size"`
	DeletePause    time.Duration `mapstructure:"delete_pause"`
	ClearPause     time.Duration `mapstructure:"clear_pause"`
	Retry          RetryPolicy   `mapstructure:"retry"`
}

// DefaultConfig keeps the pipeline under the document store write limits.
func DefaultConfig() Config {
	return Config{
		BatchSize:      200,
		Throttle:       900 * time.Millisecond,
		DeletePageSize: 450,
		DeletePause:    250 * time.Millisecond,
		ClearPause:     300 * time.Millisecond,
		Retry:          DefaultRetryPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.DeletePageSize <= 0 {
		c.DeletePageSize = def.DeletePageSize
	}
	if c.Throttle < 0 {
		c.Throttle = 0
	}
	if c.DeletePause < 0 {
		c.DeletePause = 0
	}
	if c.ClearPause < 0 {
		c.ClearPause = 0
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if c.Retry.InitialBackoff < 0 {
		c.Retry.InitialBackoff = 0
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = def.Retry.MaxBackoff
	}
	return c
}

// Pipeline writes records in sequential atomic batches and removes them
// again by upload or wholesale.
type Pipeline struct {
	records repository.RecordRepository
	uploads repository.UploadRepository

	cfg     Config
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

func WithConfig(cfg Config) PipelineOption {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithSleep replaces the wait used for throttling and backoff.
func WithSleep(sleep func(context.Context, time.Duration) error) PipelineOption {
	return func(p *Pipeline) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func WithLogger(log *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline builds a pipeline over the two collections of a store.
func NewPipeline(records repository.RecordRepository, uploads repository.UploadRepository, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		records: records,
		uploads: uploads,
		cfg:     DefaultConfig(),
		sleep:   sleepContext,
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg = p.cfg.withDefaults()
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

type plannedRow struct {
	index     int
	territory domain.Territory
}

// Ingest persists records under meta.UploadID and then writes the ledger
// entry. Rows without a resolvable territory are skipped. Errors never
// escape: they are reported in the outcome, together with the number of
// rows committed before the failure.
func (p *Pipeline) Ingest(ctx context.Context, records []domain.Record, meta domain.UploadMetadata, onProgress domain.ProgressFunc) domain.IngestionOutcome {
	outcome := domain.IngestionOutcome{UploadID: meta.UploadID}
	fail := func(err error) domain.IngestionOutcome {
		outcome.Success = false
		outcome.Err = err
		outcome.Error = err.Error()
		p.metrics.UploadFinished(false)
		return outcome
	}
	if onProgress == nil {
		onProgress = func(domain.Progress) {}
	}

	uploadID := strings.TrimSpace(meta.UploadID)
	if uploadID == "" {
		return fail(&ValidationError{Field: "uploadId", Reason: "is required"})
	}
	meta.UploadID = uploadID
	outcome.UploadID = uploadID

	label, ok := domain.ParseUploadLabel(string(meta.Territory))
	if !ok {
		return fail(&ValidationError{Field: "regional", Reason: fmt.Sprintf("%q is not a known territory", meta.Territory)})
	}

	plan := make([]plannedRow, 0, len(records))
	for idx, record := range records {
		territory, ok := record.Territory(label)
		if !ok {
			continue
		}
		plan = append(plan, plannedRow{index: idx, territory: territory})
	}
	skipped := len(records) - len(plan)
	outcome.Skipped = skipped
	if len(records) > 0 && len(plan) == 0 {
		return fail(&ValidationError{Reason: "no row resolves to a territory and no default territory was given"})
	}
	p.metrics.RecordsSkipped(skipped)

	log := p.log.WithField("uploadId", uploadID)
	batchSize := p.cfg.BatchSize
	totalBatches := (len(records) + batchSize - 1) / batchSize
	total := len(plan)
	log.WithFields(logrus.Fields{
		"rows":         len(records),
		"resolvable":   total,
		"skipped":      skipped,
		"totalBatches": totalBatches,
	}).Info("starting ingestion")

	saved := 0
	cursor := 0
	for batch := 0; batch < totalBatches; batch++ {
		upper := (batch + 1) * batchSize
		var docs []domain.RecordDocument
		for cursor < len(plan) && plan[cursor].index < upper {
			row := plan[cursor]
			docs = append(docs, domain.NewRecordDocument(uploadID, row.index, row.territory, records[row.index]))
			cursor++
		}

		progress := domain.Progress{Batch: batch + 1, TotalBatches: totalBatches, Total: total}
		if len(docs) > 0 {
			started := p.now()
			err := p.withRetry(ctx, "write batch", func(ctx context.Context) error {
				return p.records.UpsertBatch(ctx, docs)
			}, func(failure int, delay time.Duration) {
				progress.Saved = saved
				progress.Percent = domain.Percentage(saved, total)
				progress.Retrying = true
				progress.RetryCount = failure
				progress.NextRetryIn = int(delay.Round(time.Second) / time.Second)
				onProgress(progress)
			})
			if err != nil {
				outcome.Count = saved
				log.WithError(err).WithFields(logrus.Fields{"batch": batch + 1, "saved": saved}).Error("ingestion aborted")
				return fail(err)
			}
			saved += len(docs)
			p.metrics.BatchCommitted(len(docs), p.now().Sub(started))
			log.WithFields(logrus.Fields{"batch": batch + 1, "size": len(docs), "saved": saved}).Debug("batch committed")
		}

		onProgress(domain.Progress{
			Batch:        batch + 1,
			TotalBatches: totalBatches,
			Saved:        saved,
			Total:        total,
			Percent:      domain.Percentage(saved, total),
		})

		if len(docs) > 0 && batch < totalBatches-1 {
			if err := p.sleep(ctx, p.cfg.Throttle); err != nil {
				outcome.Count = saved
				return fail(fmt.Errorf("ingestion cancelled: %w", err))
			}
		}
	}
	outcome.Count = saved

	entry := domain.NewUploadEntry(meta, ledgerTerritory(plan, label), saved, skipped)
	if err := p.withRetry(ctx, "write upload ledger", func(ctx context.Context) error {
		return p.uploads.Upsert(ctx, entry)
	}, nil); err != nil {
		log.WithError(err).Error("failed to record upload")
		return fail(err)
	}

	log.WithFields(logrus.Fields{"count": saved, "regional": entry.Territory}).Info("ingestion finished")
	outcome.Success = true
	p.metrics.UploadFinished(true)
	return outcome
}

// ledgerTerritory is the one territory shared by every persisted row,
// MISTO when they differ, or the run label when nothing was persisted.
func ledgerTerritory(plan []plannedRow, label domain.Territory) domain.Territory {
	if len(plan) == 0 {
		return label
	}
	first := plan[0].territory
	for _, row := range plan[1:] {
		if row.territory != first {
			return domain.TerritoryMixed
		}
	}
	return first
}

// DeleteUpload removes every record of uploadID in atomic pages and then
// its ledger entry.
func (p *Pipeline) DeleteUpload(ctx context.Context, uploadID string) domain.DeleteResult {
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" {
		err := &ValidationError{Field: "uploadId", Reason: "is required"}
		return domain.DeleteResult{Error: err.Error(), Err: err}
	}

	log := p.log.WithField("uploadId", uploadID)
	page := p.cfg.DeletePageSize
	deleted, err := p.drain(ctx, "records", p.cfg.DeletePause, func(ctx context.Context) ([]string, error) {
		return p.records.ListIDsByUpload(ctx, uploadID, page)
	}, p.records.DeleteBatch)
	if err != nil {
		log.WithError(err).WithField("deleted", deleted).Error("failed to delete upload records")
		return domain.DeleteResult{DeletedCount: deleted, Error: err.Error(), Err: err}
	}

	err = p.withRetry(ctx, "delete upload ledger", func(ctx context.Context) error {
		if err := p.uploads.Delete(ctx, uploadID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	}, nil)
	if err != nil {
		log.WithError(err).Error("failed to delete upload ledger entry")
		return domain.DeleteResult{DeletedCount: deleted, Error: err.Error(), Err: err}
	}
	p.metrics.Deleted("uploads", 1)

	log.WithField("deleted", deleted).Info("upload deleted")
	return domain.DeleteResult{Success: true, DeletedCount: deleted}
}

// ClearAll empties the records collection and then the ledger.
func (p *Pipeline) ClearAll(ctx context.Context) domain.ClearResult {
	page := p.cfg.DeletePageSize
	var result domain.ClearResult

	deletedData, err := p.drain(ctx, "records", p.cfg.ClearPause, func(ctx context.Context) ([]string, error) {
		return p.records.ListIDs(ctx, page)
	}, p.records.DeleteBatch)
	result.DeletedData = deletedData
	if err != nil {
		p.log.WithError(err).Error("failed to clear records")
		result.Error, result.Err = err.Error(), err
		return result
	}

	deletedUploads, err := p.drain(ctx, "uploads", p.cfg.ClearPause, func(ctx context.Context) ([]string, error) {
		return p.uploads.ListIDs(ctx, page)
	}, p.uploads.DeleteBatch)
	result.DeletedUploads = deletedUploads
	if err != nil {
		p.log.WithError(err).Error("failed to clear upload ledger")
		result.Error, result.Err = err.Error(), err
		return result
	}

	p.log.WithFields(logrus.Fields{"deletedData": deletedData, "deletedUploads": deletedUploads}).Warn("all data cleared")
	result.Success = true
	return result
}

// drain lists a page of ids, deletes it atomically and pauses, until a
// listing comes back empty. A failed page is listed again on retry, so
// nothing is deleted twice or skipped.
func (p *Pipeline) drain(
	ctx context.Context,
	collection string,
	pause time.Duration,
	list func(context.Context) ([]string, error),
	remove func(context.Context, []string) error,
) (int, error) {
	deleted := 0
	for {
		var removed int
		err := p.withRetry(ctx, "delete "+collection+" page", func(ctx context.Context) error {
			ids, err := list(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				removed = 0
				return nil
			}
			if err := remove(ctx, ids); err != nil {
				return err
			}
			removed = len(ids)
			return nil
		}, nil)
		if err != nil {
			return deleted, err
		}
		if removed == 0 {
			return deleted, nil
		}
		deleted += removed
		p.metrics.Deleted(collection, removed)
		p.log.WithFields(logrus.Fields{"collection": collection, "page": removed, "deleted": deleted}).Debug("page deleted")

		if err := p.sleep(ctx, pause); err != nil {
			return deleted, fmt.Errorf("delete cancelled: %w", err)
		}
	}
}

// withRetry runs fn until it succeeds, the retry budget is spent or ctx is
// done. onRetry runs before each backoff sleep.
func (p *Pipeline) withRetry(ctx context.Context, op string, fn func(context.Context) error, onRetry func(failure int, delay time.Duration)) error {
	policy := p.cfg.Retry
	for failure := 1; ; failure++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s cancelled: %w", op, ctxErr)
		}
		if policy.Exhausted(failure) {
			return &FatalStoreError{Op: op, Attempts: failure, Err: err}
		}

		delay := policy.Delay(failure)
		transient := &TransientStoreError{Op: op, Attempt: failure, Err: err}
		p.metrics.Retried(op)
		p.log.WithError(transient).WithFields(logrus.Fields{
			"retryCount":  failure,
			"nextRetryIn": delay.String(),
		}).Warn("store call failed, retrying")
		if onRetry != nil {
			onRetry(failure, delay)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s cancelled: %w", op, err)
		}
	}
}
