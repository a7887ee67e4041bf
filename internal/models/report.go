package models

import "time"

// TableFinding is the probe result for one table
type TableFinding struct {
	Name             string      `json:"name"`
	Accessible       bool        `json:"accessible"`
	Status           *int        `json:"status"`
	RowCount         *int64      `json:"rowCount"`
	Columns          []string    `json:"columns"`
	SensitiveColumns []string    `json:"sensitiveColumns"`
	Warnings         []string    `json:"warnings"`
	Notes            []string    `json:"notes"`
	Error            string      `json:"error,omitempty"`
	PolicyState      PolicyState `json:"policyState"`
	RiskLevel        RiskLevel   `json:"riskLevel,omitempty"`
}

// Recommendation is one prioritized remediation step
type Recommendation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Detail   string    `json:"detail"`
	Severity RiskLevel `json:"severity"`
}

// ClaimsSummary is the displayable subset of decoded token claims
type ClaimsSummary struct {
	Role string `json:"role,omitempty"`
	Ref  string `json:"ref,omitempty"`
	Iss  string `json:"iss,omitempty"`
	Sub  string `json:"sub,omitempty"`
	Aud  any    `json:"aud,omitempty"`
	Exp  *int64 `json:"exp,omitempty"`
	Iat  *int64 `json:"iat,omitempty"`
}

// ConnectionSummary describes the roles behind the credentials used
type ConnectionSummary struct {
	APIKeyRole         string         `json:"apiKeyRole,omitempty"`
	BearerRole         string         `json:"bearerRole,omitempty"`
	UsesDistinctBearer bool           `json:"usesDistinctBearer"`
	APIKeyClaims       *ClaimsSummary `json:"apiKeyClaims,omitempty"`
	BearerClaims       *ClaimsSummary `json:"bearerClaims,omitempty"`
}

// ReportSummary holds the headline numbers of a report
type ReportSummary struct {
	RiskLevel       RiskLevel         `json:"riskLevel"`
	TableCount      int               `json:"tableCount"`
	AccessibleCount int               `json:"accessibleCount"`
	ProtectedCount  int               `json:"protectedCount"`
	UnknownCount    int               `json:"unknownCount"`
	KeyFindings     []string          `json:"keyFindings"`
	RiskBreakdown   map[RiskLevel]int `json:"riskBreakdown"`
	TableRisk       RiskLevel         `json:"tableRisk,omitempty"`
	AssetRisk       RiskLevel         `json:"assetRisk,omitempty"`
	LeakRisk        RiskLevel         `json:"leakRisk,omitempty"`
}

// Trend compares a report with the previous one for the same project
type Trend struct {
	Direction         string    `json:"direction"` // improving, degrading, stable
	PreviousRisk      RiskLevel `json:"previousRisk"`
	CurrentRisk       RiskLevel `json:"currentRisk"`
	ComparedWith      string    `json:"comparedWith"`
	PreviousCreatedAt time.Time `json:"previousCreatedAt"`

	PreviousAccessible int      `json:"previousAccessible"`
	CurrentAccessible  int      `json:"currentAccessible"`
	NewlyExposed       []string `json:"newlyExposed,omitempty"`
	NoLongerExposed    []string `json:"noLongerExposed,omitempty"`
}

// Trend directions
const (
	TrendImproving = "improving"
	TrendDegrading = "degrading"
	TrendStable    = "stable"
)

// Report is the immutable security report artifact
type Report struct {
	ID                string             `json:"id"`
	CreatedAt         time.Time          `json:"createdAt"`
	ProjectID         string             `json:"projectId"`
	Schema            string             `json:"schema"`
	BaseURL           string             `json:"baseUrl"`
	Domain            string             `json:"domain,omitempty"`
	InspectedHost     string             `json:"inspectedHost,omitempty"`
	LeakOnly          bool               `json:"leakOnly,omitempty"`
	ConnectionSummary *ConnectionSummary `json:"connectionSummary"`
	Summary           ReportSummary      `json:"summary"`
	Findings          []TableFinding     `json:"findings"`
	AssetDetections   []AssetDetection   `json:"assetDetections"`
	LeakDetections    []LeakDetection    `json:"leakDetections"`
	Recommendations   []Recommendation   `json:"recommendations"`
	Trend             *Trend             `json:"trend,omitempty"`
}
