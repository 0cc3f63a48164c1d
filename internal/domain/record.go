package domain

import (
	"fmt"
	"strings"
	"time"
)

// Canonical column names produced by the spreadsheet normalizer.
const (
	FieldIncidencia  = "INCIDENCIA"
	FieldCausa       = "CAUSA"
	FieldAlimentador = "ALIMENT"
	FieldData        = "DATA"
	FieldElemento    = "ELEMENTO"
	FieldConjunto    = "CONJUNTO"
	FieldRegional    = "REGIONAL"
)

// RequiredFields are the columns every uploaded spreadsheet must carry.
var RequiredFields = []string{
	FieldIncidencia,
	FieldCausa,
	FieldAlimentador,
	FieldData,
	FieldElemento,
	FieldConjunto,
}

// Record is one fault occurrence row keyed by canonical column name.
// An empty value stands for a missing cell.
type Record map[string]string

// Get returns the trimmed value stored under field.
func (r Record) Get(field string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r[field])
}

// Territory resolves the row territory, falling back to def when the row
// does not carry a recognizable one.
func (r Record) Territory(def Territory) (Territory, bool) {
	if t, ok := NormalizeTerritory(r.Get(FieldRegional)); ok {
		return t, true
	}
	if def.Resolvable() {
		return def, true
	}
	return "", false
}

// DocumentID returns the deterministic identifier of a persisted row.
func DocumentID(uploadID string, rowIndex int) string {
	return fmt.Sprintf("%s_%d", uploadID, rowIndex)
}

// RecordDocument is a record annotated with ingestion metadata, as stored.
type RecordDocument struct {
	ID        string    `json:"id"`
	UploadID  string    `json:"uploadId"`
	RowIndex  int       `json:"rowIndex"`
	Territory Territory `json:"regional"`
	Fields    Record    `json:"fields"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRecordDocument annotates a source row without mutating it.
func NewRecordDocument(uploadID string, rowIndex int, territory Territory, fields Record) RecordDocument {
	return RecordDocument{
		ID:        DocumentID(uploadID, rowIndex),
		UploadID:  uploadID,
		RowIndex:  rowIndex,
		Territory: territory,
		Fields:    fields,
	}
}

// Payload flattens the document into the field map written to the store.
// The territory is written under both REGIONAL and regional. The server
// timestamp is added by each backend.
func (d RecordDocument) Payload() map[string]any {
	payload := make(map[string]any, len(d.Fields)+4)
	for key, value := range d.Fields {
		payload[key] = value
	}
	payload["REGIONAL"] = string(d.Territory)
	payload["regional"] = string(d.Territory)
	payload["uploadId"] = d.UploadID
	payload["rowIndex"] = d.RowIndex
	return payload
}

// RecordFromPayload rebuilds a document from a stored field map.
func RecordFromPayload(id string, payload map[string]any) RecordDocument {
	doc := RecordDocument{ID: id, Fields: Record{}}
	for key, value := range payload {
		switch key {
		case "uploadId":
			doc.UploadID = fmt.Sprint(value)
		case "rowIndex":
			doc.RowIndex = toInt(value)
		case "regional":
			doc.Territory = Territory(fmt.Sprint(value))
		case "createdAt":
			if ts, ok := value.(time.Time); ok {
				doc.CreatedAt = ts
			}
		case "REGIONAL":
			if doc.Territory == "" {
				doc.Territory = Territory(fmt.Sprint(value))
			}
		default:
			if value == nil {
				doc.Fields[key] = ""
				continue
			}
			doc.Fields[key] = fmt.Sprint(value)
		}
	}
	return doc
}

// RecordFilter narrows a record query.
type RecordFilter struct {
	Territory Territory
	From      string // inclusive, YYYY-MM-DD
	To        string // inclusive, YYYY-MM-DD
	Limit     int
}

// DefaultQueryLimit caps record and history queries.
const DefaultQueryLimit = 5000

// EffectiveLimit returns the limit to apply to the query.
func (f RecordFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > DefaultQueryLimit {
		return DefaultQueryLimit
	}
	return f.Limit
}

func toInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return 0
}
