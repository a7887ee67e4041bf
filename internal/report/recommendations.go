package report

import (
	"fmt"

	"github.com/ppiankov/supaspectre/internal/assetscan"
	"github.com/ppiankov/supaspectre/internal/models"
)

// RecommendationInput is what the recommendation rules look at
type RecommendationInput struct {
	Accessible    []models.TableFinding
	TableRisk     models.RiskLevel
	Assets        []models.AssetDetection
	Leaks         []models.LeakDetection
	KeyRole       string
	BearerRole    string
	LocationLabel string
}

// Recommendations returns remediation steps in a fixed priority order
func Recommendations(in RecommendationInput) []models.Recommendation {
	recs := []models.Recommendation{}
	location := firstNonEmpty(in.LocationLabel, "the inspected site")

	if n := len(in.Leaks); n > 0 {
		summary := fmt.Sprintf("%d potential API credential leaks were detected.", n)
		if n == 1 {
			summary = "1 potential API credential leak was detected."
		}
		recs = append(recs, models.Recommendation{
			ID:       "api-leaks",
			Title:    "Rotate leaked API credentials",
			Detail:   fmt.Sprintf("%s Review detections for %s, revoke the exposed secrets, and remove them from client-side bundles.", summary, location),
			Severity: DeriveLeakRisk(in.Leaks),
		})
	}

	var exposed, sensitiveTables, sensitiveCols []string
	seenCols := map[string]struct{}{}
	for _, f := range in.Accessible {
		exposed = append(exposed, f.Name)
		if len(f.SensitiveColumns) == 0 {
			continue
		}
		sensitiveTables = append(sensitiveTables, f.Name)
		for _, c := range f.SensitiveColumns {
			if _, ok := seenCols[c]; !ok {
				seenCols[c] = struct{}{}
				sensitiveCols = append(sensitiveCols, c)
			}
		}
	}

	if len(exposed) > 0 {
		severity := in.TableRisk
		if !severity.Valid() {
			severity = models.RiskHigh
		}
		recs = append(recs, models.Recommendation{
			ID:       "rls",
			Title:    "Enforce Row Level Security on exposed tables",
			Detail:   fmt.Sprintf("The following tables respond to anonymous/service requests: %s. Enable RLS and create explicit SELECT policies that scope rows to authorized users only.", FormatList(exposed)),
			Severity: severity,
		})
	}

	if len(sensitiveTables) > 0 {
		recs = append(recs, models.Recommendation{
			ID:       "sensitive-columns",
			Title:    "Protect sensitive columns behind policies or RPCs",
			Detail:   fmt.Sprintf("Sensitive-looking columns (%s) were exposed by %s. Restrict them to trusted roles or move them behind server-side functions.", FormatList(sensitiveCols), FormatList(sensitiveTables)),
			Severity: models.RiskHigh,
		})
	}

	if in.KeyRole == models.RoleServiceRole || in.BearerRole == models.RoleServiceRole {
		recs = append(recs, models.Recommendation{
			ID:       "service-role",
			Title:    "Remove service_role keys from client-side contexts",
			Detail:   "Service role keys bypass RLS entirely. Rotate this key and move privileged operations to secure backend services.",
			Severity: models.RiskCritical,
		})
	}

	if n := len(in.Assets); n > 0 {
		noun, verb, keys := "credentials", "were", "keys"
		if n == 1 {
			noun, verb, keys = "credential", "was", "key"
		}
		recs = append(recs, models.Recommendation{
			ID:       "static-assets",
			Title:    "Purge Supabase credentials from static assets",
			Detail:   fmt.Sprintf("%d exposed %s %s discovered in static files. Rotate the affected %s immediately, remove them from bundles, and load configuration from server-side storage instead of shipping secrets to the client.", n, noun, verb, keys),
			Severity: AssetRisk(in.Assets),
		})
	}

	if len(exposed) > 0 {
		recs = append(recs, models.Recommendation{
			ID:       "filters",
			Title:    "Test filter operators against exposed endpoints",
			Detail:   "Use Supabase filter operators (`eq`, `neq`, `ilike`, `in`) to ensure unauthorized users cannot pivot across tables, as highlighted in the DeepStrike misconfiguration research.",
			Severity: models.RiskHigh,
		})
	} else {
		recs = append(recs, models.Recommendation{
			ID:       "regression-tests",
			Title:    "Add automated RLS regression tests",
			Detail:   "Keep integration tests that exercise anon and authenticated roles so future schema changes do not re-open exposures.",
			Severity: models.RiskMedium,
		})
	}
	return recs
}

// HasServiceAsset reports whether any asset detection carries a service key
func HasServiceAsset(assets []models.AssetDetection) bool {
	for _, a := range assets {
		if assetscan.IsServiceKey(a) {
			return true
		}
	}
	return false
}
