package consent

// RiskLevel categorizes how dangerous an action is. Levels form a total
// order: low < medium < high < critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRanks = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the position of r in the risk order, or -1 for an unknown
// level. Unknown levels always fail closed at call sites.
func (r RiskLevel) Rank() int {
	rank, ok := riskRanks[r]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether r is one of the four defined levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskRanks[r]
	return ok
}
