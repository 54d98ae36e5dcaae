package risk

import "go.uber.org/zap"

// UnitLimitConfig holds the four configurable unit caps.
type UnitLimitConfig struct {
	MaxUnitsPerStock          int
	MaxUnitsCorrelated        int // sector-level cap
	MaxUnitsLooselyCorrelated int
	MaxUnitsTotal             int
}

// DefaultUnitLimitConfig mirrors the original project's defaults.
func DefaultUnitLimitConfig() UnitLimitConfig {
	return UnitLimitConfig{
		MaxUnitsPerStock:          4,
		MaxUnitsCorrelated:        10,
		MaxUnitsLooselyCorrelated: 16,
		MaxUnitsTotal:             20,
	}
}

// OpenPositionUnits is the minimal view the unit-limit manager needs of the
// open-position set: stock identity, sector, and current unit count.
type OpenPositionUnits struct {
	StockID uint
	Sector  string
	Units   int
}

// UnitStatus summarizes current unit usage by stock and sector.
type UnitStatus struct {
	TotalUnits   int
	ByStock      map[uint]int
	BySector     map[string]int
}

// UnitLimitManager enforces per-stock, per-sector, and portfolio unit caps.
type UnitLimitManager struct {
	logger *zap.Logger
	config UnitLimitConfig
}

// NewUnitLimitManager builds a manager with the given caps.
func NewUnitLimitManager(logger *zap.Logger, config UnitLimitConfig) *UnitLimitManager {
	return &UnitLimitManager{logger: logger, config: config}
}

// GetUnitStatus sums units by stock and sector from the open positions.
func (m *UnitLimitManager) GetUnitStatus(open []OpenPositionUnits) UnitStatus {
	status := UnitStatus{
		ByStock:  make(map[uint]int),
		BySector: make(map[string]int),
	}
	for _, p := range open {
		status.TotalUnits += p.Units
		status.ByStock[p.StockID] += p.Units
		status.BySector[p.Sector] += p.Units
	}
	return status
}

// CheckResult is the structured outcome of a unit-limit check.
type CheckResult struct {
	CanAdd       bool
	Reason       string
	LimitType    string
	CurrentUnits int
	Limit        int
}

// CanAddUnit checks, in order, the total cap, the per-stock cap, and the
// sector cap, returning a structured rejection reason on the first breach.
func (m *UnitLimitManager) CanAddUnit(stockID uint, sector string, open []OpenPositionUnits) CheckResult {
	status := m.GetUnitStatus(open)

	if status.TotalUnits+1 > m.config.MaxUnitsTotal {
		return CheckResult{
			CanAdd: false, Reason: "total unit limit exceeded",
			LimitType: "total", CurrentUnits: status.TotalUnits, Limit: m.config.MaxUnitsTotal,
		}
	}

	stockUnits := status.ByStock[stockID]
	if stockUnits+1 > m.config.MaxUnitsPerStock {
		return CheckResult{
			CanAdd: false, Reason: "per-stock unit limit exceeded",
			LimitType: "per_stock", CurrentUnits: stockUnits, Limit: m.config.MaxUnitsPerStock,
		}
	}

	sectorUnits := status.BySector[sector]
	if sectorUnits+1 > m.config.MaxUnitsCorrelated {
		return CheckResult{
			CanAdd: false, Reason: "sector unit limit exceeded",
			LimitType: "sector", CurrentUnits: sectorUnits, Limit: m.config.MaxUnitsCorrelated,
		}
	}

	return CheckResult{CanAdd: true}
}
