package tui

import (
	"sort"
	"strings"

	"github.com/ppiankov/supaspectre/internal/models"
)

// filterState holds current active filters. Risk is a floor: findings
// below it are hidden.
type filterState struct {
	Kind       string
	Risk       models.RiskLevel
	SearchText string
}

type sortField int

const (
	sortByRisk sortField = iota
	sortByKind
	sortBySubject
	sortByLocation
)

const sortFieldCount = 4

// applyFilters returns findings matching all active filters.
func applyFilters(findings []finding, f filterState) []finding {
	result := make([]finding, 0, len(findings))
	searchLower := strings.ToLower(f.SearchText)

	for _, item := range findings {
		if f.Kind != "" && item.Kind != f.Kind {
			continue
		}
		if f.Risk != "" && !item.Risk.AtLeast(f.Risk) {
			continue
		}
		if searchLower != "" && !matchesSearch(item, searchLower) {
			continue
		}
		result = append(result, item)
	}
	return result
}

func matchesSearch(item finding, searchLower string) bool {
	if strings.Contains(strings.ToLower(item.Subject), searchLower) ||
		strings.Contains(strings.ToLower(item.Location), searchLower) ||
		strings.Contains(string(item.Risk), searchLower) {
		return true
	}
	for _, d := range item.Details {
		if strings.Contains(strings.ToLower(d), searchLower) {
			return true
		}
	}
	return false
}

// nextRiskFloor cycles none, medium, high, critical and back to none
func nextRiskFloor(cur models.RiskLevel) models.RiskLevel {
	switch cur {
	case "":
		return models.RiskMedium
	case models.RiskMedium:
		return models.RiskHigh
	case models.RiskHigh:
		return models.RiskCritical
	default:
		return ""
	}
}

// sortFindings sorts in place; risk sorts most severe first.
func sortFindings(findings []finding, field sortField) {
	sort.SliceStable(findings, func(i, j int) bool {
		switch field {
		case sortByRisk:
			return findings[i].Risk.Rank() > findings[j].Risk.Rank()
		case sortByKind:
			return findings[i].Kind < findings[j].Kind
		case sortBySubject:
			return findings[i].Subject < findings[j].Subject
		case sortByLocation:
			return findings[i].Location < findings[j].Location
		default:
			return false
		}
	})
}

// uniqueKinds returns deduplicated, sorted kinds.
func uniqueKinds(findings []finding) []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, f := range findings {
		if !seen[f.Kind] {
			seen[f.Kind] = true
			kinds = append(kinds, f.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

func sortFieldName(f sortField) string {
	switch f {
	case sortByRisk:
		return "risk"
	case sortByKind:
		return "kind"
	case sortBySubject:
		return "subject"
	case sortByLocation:
		return "location"
	default:
		return "unknown"
	}
}
