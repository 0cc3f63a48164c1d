package mongodb

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rpattn/reiteradas/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestRecordFilter(t *testing.T) {
	assert.Equal(t, bson.M{"REGIONAL": "NORTE"}, recordFilter(domain.RecordFilter{Territory: domain.TerritoryNorte}))
	assert.Equal(t, bson.M{
		"REGIONAL": "NORTE",
		"DATA":     bson.M{"$gte": "2024-01-01", "$lte": "2024-01-31"},
	}, recordFilter(domain.RecordFilter{Territory: domain.TerritoryNorte, From: "2024-01-01", To: "2024-01-31"}))
}

func TestPlainConvertsDriverTypes(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	out := plain(bson.M{
		"uploadedAt":   primitive.NewDateTimeFromTime(ts),
		"columns":      primitive.A{"INCIDENCIA", "DATA"},
		"totalRecords": int32(450),
	})

	entry := domain.UploadEntryFromPayload("U", out)
	assert.True(t, ts.Equal(entry.UploadedAt))
	assert.Equal(t, []string{"INCIDENCIA", "DATA"}, entry.Columns)
	assert.Equal(t, 450, entry.TotalRecords)
}
