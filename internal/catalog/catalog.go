// Package catalog holds the static territory -> conjunto -> feeder table
// and counts occurrences per feeder.
package catalog

import (
	"strings"

	"github.com/rpattn/reiteradas/internal/domain"
)

// Conjunto is a named group of feeders.
type Conjunto struct {
	Name    string   `json:"name"`
	Feeders []string `json:"feeders"`
}

var feeders = map[domain.Territory][]Conjunto{
	domain.TerritoryNorte: {
		{Name: "BLOCO INHUÇU", Feeders: []string{
			"INH01I2", "INH01I3", "INH01I4", "INH01I5", "INH01I6", "INH01I7",
			"IBP01I1", "IBP01I2", "IBP01I3", "IBP01I4", "IBP01I5",
			"GCN01N1", "GCN01N2", "GCN01N5",
		}},
		{Name: "BLOCO TIANGUÁ", Feeders: []string{
			"MCB01M2", "MCB01M3", "MCB01M4",
			"VCS01C2", "VCS01C3", "VCS01C4", "VCS01C5",
			"TNG01S1", "TNG01S2", "TNG01S3", "TNG01S4", "TNG01S5", "TNG01S6", "TNG01S7",
		}},
		{Name: "BLOCO SOBRAL", Feeders: []string{
			"SBU01S1", "SBU01S2", "SBU01S3", "SBU01S4", "SBU01S5", "SBU01S6", "SBU01S7", "SBU01S8", "SBU01S9",
			"SBQ01F2", "SBQ01F3", "SBQ01F4",
			"SBC01L1", "SBC01L2", "SBC01L3", "SBC01L4", "SBC01L5",
			"MSP01P1", "MSP01P2", "MSP01P3", "MSP01P4",
			"CRU01C2", "CRU01C3", "CRU01C4",
			"CRE01C2", "CRE01C4",
			"CRC01C1", "CRC01C2", "CRC01C3", "CRC01C4",
		}},
	},
	domain.TerritoryAtlantico: {
		{Name: "BLOCO TRAIRI", Feeders: []string{
			"TRR01P1", "TRR01P2", "TRR01P3", "TRR01P4",
			"PAR01C2", "PAR01C3", "PAR01C4", "PAR01C5", "PAR01C6", "PAR01C7",
			"PCU01L2", "PCU01L3", "PCU01L4", "PCU01L5",
		}},
		{Name: "BLOCO ITAPAJÉ", Feeders: []string{
			"ITE01I1", "ITE01I2", "ITE01I3", "ITE01I4", "ITE01I5",
			"UMR01M1", "UMR01M2", "UMR01M3",
			"SLC01S2", "SLC01S3", "SLC01S5", "SLC01S6", "SLC01S7",
		}},
	},
	domain.TerritoryCentroNorte: {
		{Name: "CANINDÉ - Canindé", Feeders: []string{"CND01C1", "CND01C2", "CND01C3", "CND01C4", "CND01C5", "CND01C6"}},
		{Name: "CANINDÉ - Inhuporanga", Feeders: []string{"INP01N3", "INP01N4", "INP01N5"}},
		{Name: "CANINDÉ - Boa Viagem", Feeders: []string{"BVG01P1", "BVG01P2", "BVG01P3", "BVG01P4"}},
		{Name: "CANINDÉ - Macaoca", Feeders: []string{"MCA01L1", "MCA01L2", "MCA01L3"}},
		{Name: "QUIXADÁ - Banabuiú", Feeders: []string{"BNB01Y2"}},
		{Name: "QUIXADÁ - Quixadá", Feeders: []string{"QXD01P1", "QXD01P2", "QXD01P3", "QXD01P4", "QXD01P5", "QXD01P6"}},
		{Name: "NOVA RUSSAS - Ararendá", Feeders: []string{"ARR01L1", "ARR01L2", "ARR01L3"}},
		{Name: "NOVA RUSSAS - Araras", Feeders: []string{"ARU01Y1", "ARU01Y2", "ARU01Y4", "ARU01Y5", "ARU01Y6", "ARU01Y7", "ARU01Y8"}},
		{Name: "NOVA RUSSAS - Monsenhor Tabosa", Feeders: []string{"MTB01S2", "MTB01S3", "MTB01S4"}},
		{Name: "CRATEÚS - Independência", Feeders: []string{"IDP01I1", "IDP01I2", "IDP01I3", "IDP01I4"}},
	},
}

// Conjuntos returns the feeder groups of a territory in catalog order.
func Conjuntos(t domain.Territory) []Conjunto {
	groups := feeders[t]
	out := make([]Conjunto, len(groups))
	for i, g := range groups {
		out[i] = Conjunto{Name: g.Name, Feeders: append([]string(nil), g.Feeders...)}
	}
	return out
}

// FeedersOf returns the feeders of one conjunto, or nil if unknown.
func FeedersOf(t domain.Territory, conjunto string) []string {
	conjunto = strings.TrimSpace(conjunto)
	for _, g := range feeders[t] {
		if g.Name == conjunto {
			return append([]string(nil), g.Feeders...)
		}
	}
	return nil
}

// AllFeeders returns every distinct feeder of a territory in catalog order.
func AllFeeders(t domain.Territory) []string {
	seen := make(map[string]struct{})
	var all []string
	for _, g := range feeders[t] {
		for _, f := range g.Feeders {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			all = append(all, f)
		}
	}
	return all
}

// FeederCount is the number of occurrences recorded on one feeder.
type FeederCount struct {
	Feeder   string `json:"feeder"`
	Conjunto string `json:"conjunto"`
	Count    int    `json:"count"`
}

// CountByFeeder tallies records per catalog feeder of t, in catalog order.
// Feeders without occurrences are listed with a zero count. Record feeder
// values are matched case-insensitively.
func CountByFeeder(t domain.Territory, records []domain.RecordDocument) []FeederCount {
	counts := make(map[string]int)
	for _, record := range records {
		if feeder := strings.ToUpper(record.Fields.Get(domain.FieldAlimentador)); feeder != "" {
			counts[feeder]++
		}
	}

	out := []FeederCount{}
	for _, g := range feeders[t] {
		for _, f := range g.Feeders {
			out = append(out, FeederCount{Feeder: f, Conjunto: g.Name, Count: counts[f]})
		}
	}
	return out
}
