package domain

type RiskLevel int

const (
	LevelSafe RiskLevel = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l RiskLevel) String() string {
	switch l {
	case LevelSafe:
		return "SAFE"
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (l RiskLevel) Valid() bool {
	return l >= LevelSafe && l <= LevelCritical
}

type VulnerabilityClass string

const (
	VulnOracleDivergenceCritical VulnerabilityClass = "ORACLE_DIVERGENCE_CRITICAL"
	VulnOracleDivergenceElevated VulnerabilityClass = "ORACLE_DIVERGENCE_ELEVATED"
	VulnStaleFeedCritical        VulnerabilityClass = "STALE_FEED_CRITICAL"
	VulnStaleFeed                VulnerabilityClass = "STALE_FEED"
	VulnThinLiquidityCritical    VulnerabilityClass = "THIN_LIQUIDITY_CRITICAL"
	VulnThinLiquidity            VulnerabilityClass = "THIN_LIQUIDITY"
	VulnNominal                  VulnerabilityClass = "NOMINAL"
)

type ActionType string

const (
	ActionMonitorClosely ActionType = "MONITOR_CLOSELY"
	ActionReduceLTV      ActionType = "REDUCE_LTV"
	ActionCapSupply      ActionType = "CAP_SUPPLY"
	ActionPauseBorrows   ActionType = "PAUSE_BORROWS"
	ActionFreezeMarket   ActionType = "FREEZE_MARKET"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Action struct {
	Type        ActionType `json:"type"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
}

type RiskScoreResult struct {
	Score              int                `json:"score"`
	Level              RiskLevel          `json:"level"`
	VulnerabilityClass VulnerabilityClass `json:"vulnerabilityClass"`
	Actions            []Action           `json:"actions"`
}
