package models

import "strings"

// RiskLevel grades how exposed a table, credential or report is
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every level from least to most severe
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the ordinal of the level, or -1 for an empty or unknown level
func (r RiskLevel) Rank() int {
	if rank, ok := riskRank[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is one of the four known levels
func (r RiskLevel) Valid() bool {
	return r.Rank() >= 0
}

// AtLeast reports whether r is as severe as other or more
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// Elevate returns the more severe of current and candidate.
// It never lowers an already higher level.
func Elevate(current, candidate RiskLevel) RiskLevel {
	if candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}

// ParseRiskLevel parses a case-insensitive level name
func ParseRiskLevel(s string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	return level, level.Valid()
}

// PolicyState is the inferred row-level access control posture of a table
type PolicyState string

const (
	PolicyLikelyUnprotected PolicyState = "likely-unprotected"
	PolicyProtected         PolicyState = "protected"
	PolicyUnknown           PolicyState = "unknown"
)

// Roles inferred from decoded token claims
const (
	RoleAnon          = "anon"
	RoleServiceRole   = "service_role"
	RoleAuthenticated = "authenticated"
)
