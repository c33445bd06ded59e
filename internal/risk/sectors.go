package risk

import (
	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/correlation"
)

// SectorTable maps base assets to market sectors and carries the
// per-sector concurrent-position limits.
type SectorTable struct {
	bySymbol map[string]string
	limits   map[string]int
}

// NewSectorTable builds the table from configuration.
func NewSectorTable(s cfg.Settings) *SectorTable {
	bySymbol := make(map[string]string)
	for sector, members := range s.Sectors {
		for _, base := range members {
			bySymbol[base] = sector
		}
	}
	return &SectorTable{bySymbol: bySymbol, limits: s.SectorLimits}
}

// Sector returns the sector for a futures symbol, OTHER when unknown.
func (t *SectorTable) Sector(symbol string) string {
	if sector, ok := t.bySymbol[correlation.BaseAsset(symbol)]; ok {
		return sector
	}
	return common.SectorOther
}

// Limit returns the concurrent-position cap for a sector. Unknown
// sectors use the OTHER limit.
func (t *SectorTable) Limit(sector string) int {
	if limit, ok := t.limits[sector]; ok {
		return limit
	}
	return t.limits[common.SectorOther]
}
