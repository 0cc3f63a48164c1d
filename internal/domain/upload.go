package domain

import (
	"fmt"
	"time"
)

// UploadMetadata describes one ingestion run.
type UploadMetadata struct {
	UploadID   string    `json:"uploadId"`
	Territory  Territory `json:"regional"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	FileType   string    `json:"fileType"`
	Columns    []string  `json:"columns"`
	StartedAt  time.Time `json:"startedAt"`
	UploadedBy string    `json:"uploadedBy"`
}

// TotalColumns is the number of source columns.
func (m UploadMetadata) TotalColumns() int {
	return len(m.Columns)
}

// UploadEntry is the ledger document written once per ingestion run.
type UploadEntry struct {
	UploadID       string    `json:"uploadId"`
	Territory      Territory `json:"regional"`
	FileName       string    `json:"fileName"`
	FileSize       int64     `json:"fileSize"`
	FileType       string    `json:"fileType"`
	TotalColumns   int       `json:"totalColumns"`
	Columns        []string  `json:"columns"`
	StartedAt      string    `json:"startedAt"`
	TotalRecords   int       `json:"totalRecords"`
	SkippedRecords int       `json:"skippedRecords"`
	UploadedAt     time.Time `json:"uploadedAt"`
	UploadedBy     string    `json:"uploadedBy"`
}

// NewUploadEntry builds the ledger entry for a finished run.
func NewUploadEntry(meta UploadMetadata, territory Territory, persisted, skipped int) UploadEntry {
	uploadedBy := meta.UploadedBy
	if uploadedBy == "" {
		uploadedBy = "unknown"
	}
	fileType := meta.FileType
	if fileType == "" {
		fileType = "unknown"
	}
	columns := meta.Columns
	if columns == nil {
		columns = []string{}
	}
	var startedAt string
	if !meta.StartedAt.IsZero() {
		startedAt = meta.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	return UploadEntry{
		UploadID:       meta.UploadID,
		Territory:      territory,
		FileName:       meta.FileName,
		FileSize:       meta.FileSize,
		FileType:       fileType,
		TotalColumns:   len(columns),
		Columns:        columns,
		StartedAt:      startedAt,
		TotalRecords:   persisted,
		SkippedRecords: skipped,
		UploadedBy:     uploadedBy,
	}
}

// Payload flattens the entry into the field map written to the ledger.
// uploadedAt is stamped by each backend with the server clock.
func (e UploadEntry) Payload() map[string]any {
	return map[string]any{
		"uploadId":       e.UploadID,
		"REGIONAL":       string(e.Territory),
		"regional":       string(e.Territory),
		"fileName":       e.FileName,
		"fileSize":       e.FileSize,
		"fileType":       e.FileType,
		"totalColumns":   e.TotalColumns,
		"columns":        e.Columns,
		"startedAt":      e.StartedAt,
		"totalRecords":   e.TotalRecords,
		"skippedRecords": e.SkippedRecords,
		"uploadedBy":     e.UploadedBy,
	}
}

// UploadEntryFromPayload rebuilds an entry from a stored field map.
func UploadEntryFromPayload(id string, payload map[string]any) UploadEntry {
	entry := UploadEntry{UploadID: id, Columns: []string{}}
	if v, ok := payload["regional"]; ok && v != nil {
		entry.Territory = Territory(fmt.Sprint(v))
	}
	entry.FileName = stringField(payload, "fileName")
	entry.FileType = stringField(payload, "fileType")
	entry.StartedAt = stringField(payload, "startedAt")
	entry.UploadedBy = stringField(payload, "uploadedBy")
	entry.FileSize = int64(toInt(payload["fileSize"]))
	entry.TotalColumns = toInt(payload["totalColumns"])
	entry.TotalRecords = toInt(payload["totalRecords"])
	entry.SkippedRecords = toInt(payload["skippedRecords"])
	switch cols := payload["columns"].(type) {
	case []string:
		entry.Columns = append(entry.Columns, cols...)
	case []any:
		for _, c := range cols {
			entry.Columns = append(entry.Columns, fmt.Sprint(c))
		}
	}
	if ts, ok := payload["uploadedAt"].(time.Time); ok {
		entry.UploadedAt = ts
	}
	return entry
}

func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// IngestionOutcome is the terminal result of an ingestion run.
// Count holds the rows persisted before a failure as well.
type IngestionOutcome struct {
	UploadID string `json:"uploadId"`
	Success  bool   `json:"success"`
	Count    int    `json:"count"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// DeleteResult reports the outcome of removing one upload.
type DeleteResult struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deletedCount"`
	Error        string `json:"error,omitempty"`
	Err          error  `json:"-"`
}

// ClearResult reports the outcome of wiping both collections.
type ClearResult struct {
	Success        bool   `json:"success"`
	DeletedData    int    `json:"deletedData"`
	DeletedUploads int    `json:"deletedUploads"`
	Error          string `json:"error,omitempty"`
	Err            error  `json:"-"`
}
