package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTerritoryPrefersRowValue(t *testing.T) {
	row := Record{FieldRegional: "atlântico"}
	got, ok := row.Territory(TerritoryNorte)
	require.True(t, ok)
	assert.Equal(t, TerritoryAtlantico, got)
}

func TestRecordTerritoryFallsBackToDefault(t *testing.T) {
	got, ok := Record{FieldRegional: "desconhecida"}.Territory(TerritoryNorte)
	require.True(t, ok)
	assert.Equal(t, TerritoryNorte, got)

	_, ok = Record{}.Territory(TerritoryMixed)
	assert.False(t, ok)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "U_0", DocumentID("U", 0))
	assert.Equal(t, "abc_199", DocumentID("abc", 199))
}

func TestRecordDocumentPayloadRoundTrip(t *testing.T) {
	source := Record{FieldElemento: "T-100", FieldRegional: "misto"}
	doc := NewRecordDocument("U", 7, TerritoryNorte, source)

	payload := doc.Payload()
	assert.Equal(t, "NORTE", payload["REGIONAL"])
	assert.Equal(t, "NORTE", payload["regional"])
	assert.Equal(t, "U", payload["uploadId"])
	assert.Equal(t, 7, payload["rowIndex"])
	assert.Equal(t, "misto", source[FieldRegional], "source row must not be mutated")

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload["createdAt"] = now
	back := RecordFromPayload(doc.ID, payload)
	assert.Equal(t, "U_7", back.ID)
	assert.Equal(t, "U", back.UploadID)
	assert.Equal(t, 7, back.RowIndex)
	assert.Equal(t, TerritoryNorte, back.Territory)
	assert.Equal(t, "T-100", back.Fields[FieldElemento])
	assert.Equal(t, now, back.CreatedAt)
}

func TestRecordFilterEffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultQueryLimit, RecordFilter{}.EffectiveLimit())
	assert.Equal(t, 10, RecordFilter{Limit: 10}.EffectiveLimit())
	assert.Equal(t, DefaultQueryLimit, RecordFilter{Limit: 90000}.EffectiveLimit())
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 44, Percentage(200, 450))
	assert.Equal(t, 89, Percentage(400, 450))
	assert.Equal(t, 100, Percentage(450, 450))
	assert.Equal(t, 100, Percentage(0, 0))
}

func TestNewUploadEntryDefaults(t *testing.T) {
	entry := NewUploadEntry(UploadMetadata{UploadID: "U", Columns: []string{"A", "B"}}, TerritoryNorte, 5, 2)
	assert.Equal(t, "unknown", entry.UploadedBy)
	assert.Equal(t, "unknown", entry.FileType)
	assert.Equal(t, 2, entry.TotalColumns)
	assert.Equal(t, 5, entry.TotalRecords)
	assert.Equal(t, 2, entry.SkippedRecords)

	back := UploadEntryFromPayload("U", entry.Payload())
	assert.Equal(t, entry.Columns, back.Columns)
	assert.Equal(t, TerritoryNorte, back.Territory)
	assert.Equal(t, 5, back.TotalRecords)
}
