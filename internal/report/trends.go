package report

import (
	"sort"

	"github.com/ppiankov/supaspectre/internal/models"
)

// CalculateTrend compares a report with the previous one for the same
// project. Returns nil without a previous report.
func CalculateTrend(current, previous *models.Report) *models.Trend {
	if current == nil || previous == nil {
		return nil
	}

	trend := &models.Trend{
		PreviousRisk:       previous.Summary.RiskLevel,
		CurrentRisk:        current.Summary.RiskLevel,
		ComparedWith:       previous.ID,
		PreviousCreatedAt:  previous.CreatedAt,
		PreviousAccessible: previous.Summary.AccessibleCount,
		CurrentAccessible:  current.Summary.AccessibleCount,
	}

	before := accessibleNames(previous.Findings)
	after := accessibleNames(current.Findings)
	for name := range after {
		if _, ok := before[name]; !ok {
			trend.NewlyExposed = append(trend.NewlyExposed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			trend.NoLongerExposed = append(trend.NoLongerExposed, name)
		}
	}
	sort.Strings(trend.NewlyExposed)
	sort.Strings(trend.NoLongerExposed)

	riskChange := current.Summary.RiskLevel.Rank() - previous.Summary.RiskLevel.Rank()
	exposureChange := trend.CurrentAccessible - trend.PreviousAccessible
	switch {
	case riskChange < 0, riskChange == 0 && exposureChange < 0:
		trend.Direction = models.TrendImproving
	case riskChange > 0, riskChange == 0 && exposureChange > 0:
		trend.Direction = models.TrendDegrading
	default:
		trend.Direction = models.TrendStable
	}
	return trend
}

func accessibleNames(findings []models.TableFinding) map[string]struct{} {
	names := map[string]struct{}{}
	for _, f := range findings {
		if f.Accessible {
			names[f.Name] = struct{}{}
		}
	}
	return names
}
