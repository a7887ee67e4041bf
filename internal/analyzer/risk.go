package analyzer

import "github.com/ppiankov/supaspectre/internal/models"

const (
	criticalRowCount   = 10
	aggregateCritical  = 4
	aggregateHigh      = 3
	criticalShareLimit = 0.5
	highShareLimit     = 0.3
)

// DeriveTableRiskLevel scores an accessible table from its exposed row
// count and name. A nil rowCount means the count is unknown.
func DeriveTableRiskLevel(name string, rowCount *int64) models.RiskLevel {
	if rowCount == nil {
		return models.RiskHigh
	}
	n := *rowCount
	switch {
	case n <= 0:
		return models.RiskLow
	case n == 1:
		return models.RiskMedium
	case n > criticalRowCount:
		return models.RiskCritical
	case IsSensitiveTable(name):
		return models.RiskCritical
	default:
		return models.RiskHigh
	}
}

// RiskHistogram counts accessible findings per risk level
func RiskHistogram(findings []models.TableFinding) map[models.RiskLevel]int {
	hist := map[models.RiskLevel]int{}
	for _, f := range findings {
		if !f.Accessible || f.RiskLevel == "" {
			continue
		}
		hist[f.RiskLevel]++
	}
	return hist
}

// AggregateTableRisk folds the per-table levels of accessible tables into
// one overall level.
func AggregateTableRisk(findings []models.TableFinding) models.RiskLevel {
	return AggregateHistogram(RiskHistogram(findings))
}

// AggregateHistogram is AggregateTableRisk over a precomputed histogram
func AggregateHistogram(hist map[models.RiskLevel]int) models.RiskLevel {
	total := 0
	for _, n := range hist {
		total += n
	}
	if total == 0 {
		return models.RiskLow
	}

	critical := hist[models.RiskCritical]
	highOrWorse := critical + hist[models.RiskHigh]
	share := func(n int) float64 { return float64(n) / float64(total) }

	switch {
	case critical >= aggregateCritical || share(critical) >= criticalShareLimit:
		return models.RiskCritical
	case highOrWorse >= aggregateHigh || share(highOrWorse) >= highShareLimit:
		return models.RiskHigh
	case highOrWorse+hist[models.RiskMedium] > 0:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
