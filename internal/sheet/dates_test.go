package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"2024-03-05":          "2024-03-05",
		"2024-03-05T10:11:12": "2024-03-05",
		"05/03/2024":          "2024-03-05",
		"5-3-2024":            "2024-03-05",
		"05.03.2024":          "2024-03-05",
		"2024/3/5":            "2024-03-05",
		"45292":               "2024-01-01",
		"45292.75":            "2024-01-01",
		"":                    "",
		"31/02/2024":          "",
		"amanhã":              "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDate(raw), raw)
	}
}

func TestCanonicalColumn(t *testing.T) {
	assert.Equal(t, "ALIMENT", CanonicalColumn(" Aliment. "))
	assert.Equal(t, "INCIDENCIA", CanonicalColumn("Incidência"))
	assert.Equal(t, "CENTRO NORTE", CanonicalColumn("centro   norte"))
	assert.Equal(t, "DATA", CanonicalColumn("data"))
}
