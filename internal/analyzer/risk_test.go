package analyzer

import (
	"testing"

	"github.com/ppiankov/supaspectre/internal/models"
)

func TestDeriveTableRiskLevel(t *testing.T) {
	tests := []struct {
		name  string
		table string
		rows  *int64
		want  models.RiskLevel
	}{
		{"unknown count", "logs", nil, models.RiskHigh},
		{"unknown count sensitive", "users", nil, models.RiskHigh},
		{"empty", "users", count(0), models.RiskLow},
		{"single row", "users", count(1), models.RiskMedium},
		{"few rows", "logs", count(5), models.RiskHigh},
		{"few rows sensitive", "customers", count(2), models.RiskCritical},
		{"many rows", "logs", count(11), models.RiskCritical},
		{"exactly ten", "logs", count(10), models.RiskHigh},
		{"plural sensitive", "team_members", count(3), models.RiskCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTableRiskLevel(tt.table, tt.rows); got != tt.want {
				t.Errorf("DeriveTableRiskLevel(%q) = %s, want %s", tt.table, got, tt.want)
			}
		})
	}
}

func hist(low, medium, high, critical int) map[models.RiskLevel]int {
	return map[models.RiskLevel]int{
		models.RiskLow:      low,
		models.RiskMedium:   medium,
		models.RiskHigh:     high,
		models.RiskCritical: critical,
	}
}

func TestAggregateHistogram(t *testing.T) {
	tests := []struct {
		name string
		hist map[models.RiskLevel]int
		want models.RiskLevel
	}{
		{"empty", map[models.RiskLevel]int{}, models.RiskLow},
		{"all low", hist(5, 0, 0, 0), models.RiskLow},
		{"four critical", hist(20, 0, 0, 4), models.RiskCritical},
		{"half critical", hist(1, 0, 0, 1), models.RiskCritical},
		{"three high", hist(10, 0, 3, 0), models.RiskHigh},
		{"high share", hist(2, 0, 1, 0), models.RiskHigh},
		{"critical below thresholds", hist(4, 0, 0, 2), models.RiskHigh},
		{"sparse critical", hist(7, 0, 0, 2), models.RiskMedium},
		{"one medium", hist(9, 1, 0, 0), models.RiskMedium},
		{"one high low share", hist(9, 0, 1, 0), models.RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateHistogram(tt.hist); got != tt.want {
				t.Errorf("AggregateHistogram() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregateTableRiskIgnoresInaccessible(t *testing.T) {
	findings := []models.TableFinding{
		{Name: "a", Accessible: true, RiskLevel: models.RiskLow},
		{Name: "b", Accessible: false, PolicyState: models.PolicyProtected},
		{Name: "c", Accessible: true, RiskLevel: models.RiskCritical},
	}
	if got := AggregateTableRisk(findings); got != models.RiskCritical {
		t.Errorf("AggregateTableRisk() = %s, want critical", got)
	}
}

func TestSensitiveMatchers(t *testing.T) {
	if !IsSensitiveColumn("User_Email") || IsSensitiveColumn("created_at") {
		t.Error("column matcher mismatch")
	}
	if !IsSensitiveTable("Invoices") || IsSensitiveTable("logs") {
		t.Error("table matcher mismatch")
	}
	if got := SensitiveColumns([]string{"id", "phone_number", "ssn"}); len(got) != 2 {
		t.Errorf("SensitiveColumns() = %v", got)
	}
}
