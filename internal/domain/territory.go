package domain

import "strings"

// Territory is a regional service-area designator attached to every fault record.
type Territory string

const (
	TerritoryAtlantico   Territory = "ATLANTICO"
	TerritoryNorte       Territory = "NORTE"
	TerritoryCentroNorte Territory = "CENTRO NORTE"

	// TerritoryMixed labels an upload whose rows carry their own territory.
	TerritoryMixed Territory = "MISTO"
)

// Territories lists the resolvable territories in display order.
var Territories = []Territory{TerritoryAtlantico, TerritoryNorte, TerritoryCentroNorte}

// NormalizeTerritory maps free-form spellings to a known territory.
// The second return value is false when the input does not name one.
func NormalizeTerritory(raw string) (Territory, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch value {
	case "ATLANTICO", "ATLÂNTICO":
		return TerritoryAtlantico, true
	case "NORTE":
		return TerritoryNorte, true
	case "CENTRO NORTE", "CENTRO_NORTE", "CENTRONORTE":
		return TerritoryCentroNorte, true
	}
	return "", false
}

// ParseUploadLabel validates the run-level territory label of an upload.
// Empty and MISTO both mean "resolve per row" and yield TerritoryMixed.
func ParseUploadLabel(raw string) (Territory, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" || value == string(TerritoryMixed) {
		return TerritoryMixed, true
	}
	return NormalizeTerritory(value)
}

// Resolvable reports whether t can be stamped on a persisted record.
func (t Territory) Resolvable() bool {
	_, ok := NormalizeTerritory(string(t))
	return ok && t != TerritoryMixed
}

func (t Territory) String() string {
	return string(t)
}
