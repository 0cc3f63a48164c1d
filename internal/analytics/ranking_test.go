package analytics

import (
	"testing"

	"github.com/rpattn/reiteradas/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(row int, fields domain.Record) domain.RecordDocument {
	return domain.NewRecordDocument("U", row, domain.TerritoryNorte, fields)
}

func sample() []domain.RecordDocument {
	return []domain.RecordDocument{
		doc(0, domain.Record{"ELEMENTO": "T-1", "CAUSA": "ARVORE", "DATA": "2024-01-01"}),
		doc(1, domain.Record{"ELEMENTO": "T-2", "CAUSA": "Defeito em conexao", "DATA": "2024-01-02"}),
		doc(2, domain.Record{"ELEMENTO": "T-1", "CAUSA": "ARVORE", "DATA": "2024-01-05"}),
		doc(3, domain.Record{"ELEMENTO": "F-9", "CAUSA": "VENTO", "DATA": "2024-01-03"}),
		doc(4, domain.Record{"ELEMENTO": "T-1", "CAUSA": "", "DATA": "2024-01-04"}),
		doc(5, domain.Record{"ELEMENTO": "", "CAUSA": "VENTO", "DATA": "2024-01-06"}),
	}
}

func TestRankByElemento(t *testing.T) {
	entries := Rank(sample(), domain.FieldElemento, Options{})
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Name: "T-1", Count: 3}, entries[0])
	// Ties are ordered by name.
	assert.Equal(t, "F-9", entries[1].Name)
	assert.Equal(t, "T-2", entries[2].Name)
}

func TestRankByCausaSkipsConnectionCauses(t *testing.T) {
	entries := Rank(sample(), domain.FieldCausa, Options{WithOccurrences: true})
	require.Len(t, entries, 2)
	assert.Equal(t, "ARVORE", entries[0].Name)
	assert.Len(t, entries[0].Occurrences, 2)
	assert.Equal(t, "VENTO", entries[1].Name)
}

func TestRankOptions(t *testing.T) {
	assert.Len(t, Rank(sample(), domain.FieldElemento, Options{MinCount: 2}), 1)
	assert.Len(t, Rank(sample(), domain.FieldElemento, Options{Top: 2}), 2)
	assert.Empty(t, Rank(nil, domain.FieldElemento, Options{}))
	assert.NotNil(t, Rank(nil, domain.FieldElemento, Options{}))
}

func TestOccurrencesNewestFirst(t *testing.T) {
	got := Occurrences(sample(), domain.FieldElemento, " T-1 ")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"U_2", "U_4", "U_0"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestIsRankable(t *testing.T) {
	assert.True(t, IsRankable("ALIMENT"))
	assert.False(t, IsRankable("DATA"))
}
