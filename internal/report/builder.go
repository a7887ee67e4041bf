// Package report composes table findings and stored detections into a
// risk-scored security report.
package report

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ppiankov/supaspectre/internal/analyzer"
	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/models"
)

const leakOnlyFinding = "No Supabase tables were analyzed; report generated from leak detections only."

// Input is everything a report is built from
type Input struct {
	Connection     *models.Connection
	Findings       []models.TableFinding
	Assets         []models.AssetDetection
	Leaks          []models.LeakDetection
	LiveHost       string
	DomainOverride string
	Previous       *models.Report
	// Notes are appended to the key findings as given
	Notes []string
}

// Builder creates reports
type Builder struct {
	now    func() time.Time
	newID  func() string
	logger logr.Logger
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator overrides report id generation
func WithIDGenerator(newID func() string) Option {
	return func(b *Builder) { b.newID = newID }
}

// WithLogger sets the logger
func WithLogger(l logr.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a report builder
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:    time.Now,
		newID:  func() string { return "report_" + uuid.NewString() },
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces a full report when the connection is usable and a
// leak-only report otherwise.
func (b *Builder) Build(in Input) models.Report {
	if !in.Connection.Usable() {
		return b.BuildLeakOnly(in)
	}

	conn := in.Connection
	r := b.base(in)
	r.ProjectID = conn.ProjectID
	r.Schema = credential.NormalizeSchema(conn.Schema)
	r.BaseURL = credential.BaseURL(conn.ProjectID)
	r.Findings = nonNilFindings(in.Findings)
	r.Domain = ResolveDomain(domainInput(in, r.BaseURL))

	apiClaims := credential.DecodeClaims(conn.APIKey)
	distinct := conn.Bearer != "" && conn.Bearer != conn.APIKey
	var bearerClaims map[string]any
	if distinct {
		bearerClaims = credential.DecodeClaims(conn.Bearer)
	}
	keyRole := credential.InferRole(apiClaims)
	bearerRole := credential.InferRole(bearerClaims)
	r.ConnectionSummary = &models.ConnectionSummary{
		APIKeyRole:         keyRole,
		BearerRole:         bearerRole,
		UsesDistinctBearer: distinct,
		APIKeyClaims:       credential.SummarizeClaims(apiClaims),
		BearerClaims:       credential.SummarizeClaims(bearerClaims),
	}

	t := tally(r.Findings)
	s := &r.Summary
	s.TableCount = len(r.Findings)
	s.AccessibleCount = len(t.accessible)
	s.ProtectedCount = t.protected
	s.UnknownCount = t.unknown
	s.RiskBreakdown = analyzer.RiskHistogram(r.Findings)

	b.scoreDetections(&r)

	anonAccess := keyRole == models.RoleAnon || bearerRole == models.RoleAnon
	if n := len(t.accessible); n > 0 {
		s.TableRisk = analyzer.AggregateHistogram(s.RiskBreakdown)
		accessRisk := models.RiskHigh
		if anonAccess {
			accessRisk = models.RiskCritical
		}
		s.RiskLevel = models.Elevate(s.RiskLevel, accessRisk)
		s.RiskLevel = models.Elevate(s.RiskLevel, s.TableRisk)
		s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("%d %s respond with data using the current credentials.", n, plural(n, "table", "tables")))
	}
	if len(t.accessible) == 0 && t.unknown > 0 {
		s.RiskLevel = models.Elevate(s.RiskLevel, models.RiskMedium)
		s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("%d %s returned non-auth errors that need manual review.", t.unknown, plural(t.unknown, "table", "tables")))
	}
	if len(s.KeyFindings) == 0 && t.protected > 0 {
		s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("All checked tables returned 401/403 responses (%d protected).", t.protected))
	}
	s.KeyFindings = append(s.KeyFindings, in.Notes...)

	r.Recommendations = Recommendations(RecommendationInput{
		Accessible:    t.accessible,
		TableRisk:     s.TableRisk,
		Assets:        r.AssetDetections,
		Leaks:         r.LeakDetections,
		KeyRole:       keyRole,
		BearerRole:    bearerRole,
		LocationLabel: firstNonEmpty(r.InspectedHost, r.Domain),
	})
	r.Trend = CalculateTrend(&r, in.Previous)

	b.logger.V(1).Info("report built", "id", r.ID, "project", r.ProjectID,
		"risk", string(s.RiskLevel), "tables", s.TableCount, "accessible", s.AccessibleCount)
	return r
}

// BuildLeakOnly scores a report from asset and leak detections alone
func (b *Builder) BuildLeakOnly(in Input) models.Report {
	r := b.base(in)
	r.LeakOnly = true
	r.Findings = []models.TableFinding{}
	r.Summary.RiskBreakdown = map[models.RiskLevel]int{}

	var projectID, schema string
	if in.Connection != nil {
		projectID = in.Connection.ProjectID
		schema = in.Connection.Schema
	}
	r.Domain = ResolveDomain(domainInput(in, ""))
	host := firstNonEmpty(r.InspectedHost, r.Domain)
	r.ProjectID = firstNonEmpty(projectID, host, "Unknown project")
	r.Schema = firstNonEmpty(schema, "n/a")
	switch {
	case projectID != "":
		r.BaseURL = credential.BaseURL(projectID)
	case host != "":
		r.BaseURL = "https://" + host
	}

	b.scoreDetections(&r)
	if len(r.Summary.KeyFindings) == 0 {
		r.Summary.KeyFindings = append(r.Summary.KeyFindings, leakOnlyFinding)
	}

	r.Recommendations = Recommendations(RecommendationInput{
		Assets:        r.AssetDetections,
		Leaks:         r.LeakDetections,
		LocationLabel: host,
	})
	r.Trend = CalculateTrend(&r, in.Previous)

	b.logger.V(1).Info("leak-only report built", "id", r.ID, "risk", string(r.Summary.RiskLevel),
		"assets", len(r.AssetDetections), "leaks", len(r.LeakDetections))
	return r
}

func (b *Builder) base(in Input) models.Report {
	r := models.Report{
		ID:              b.newID(),
		CreatedAt:       b.now().UTC(),
		AssetDetections: in.Assets,
		LeakDetections:  in.Leaks,
		Summary: models.ReportSummary{
			RiskLevel:   models.RiskLow,
			KeyFindings: []string{},
		},
	}
	if r.AssetDetections == nil {
		r.AssetDetections = []models.AssetDetection{}
	}
	if r.LeakDetections == nil {
		r.LeakDetections = []models.LeakDetection{}
	}
	if in.Connection != nil {
		r.InspectedHost = in.Connection.InspectedHost
	}
	if r.InspectedHost == "" {
		r.InspectedHost = in.LiveHost
	}
	return r
}

// scoreDetections elevates the summary for asset and leak detections and
// records their key findings
func (b *Builder) scoreDetections(r *models.Report) {
	s := &r.Summary
	if n := len(r.AssetDetections); n > 0 {
		s.AssetRisk = AssetRisk(r.AssetDetections)
		s.RiskLevel = models.Elevate(s.RiskLevel, s.AssetRisk)
		if n == 1 {
			s.KeyFindings = append(s.KeyFindings, "1 exposed Supabase credential discovered in static assets.")
		} else {
			s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("%d exposed Supabase credentials discovered in static assets.", n))
		}
	}
	if n := len(r.LeakDetections); n > 0 {
		s.LeakRisk = DeriveLeakRisk(r.LeakDetections)
		if s.LeakRisk == "" {
			s.LeakRisk = models.RiskHigh
		}
		s.RiskLevel = models.Elevate(s.RiskLevel, s.LeakRisk)
		if n == 1 {
			s.KeyFindings = append(s.KeyFindings, "1 potential API credential leak detected in static assets.")
		} else {
			s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("%d potential API credential leaks detected in static assets.", n))
		}
	}
}

// AssetRisk is critical when any asset exposes a service key, high for
// any other exposure, and empty without assets
func AssetRisk(assets []models.AssetDetection) models.RiskLevel {
	if len(assets) == 0 {
		return ""
	}
	if HasServiceAsset(assets) {
		return models.RiskCritical
	}
	return models.RiskHigh
}

type findingTally struct {
	accessible []models.TableFinding
	protected  int
	unknown    int
}

func tally(findings []models.TableFinding) findingTally {
	var t findingTally
	for _, f := range findings {
		switch {
		case f.Accessible:
			t.accessible = append(t.accessible, f)
		case f.PolicyState == models.PolicyProtected:
			t.protected++
		case f.PolicyState == models.PolicyUnknown:
			t.unknown++
		}
	}
	return t
}

func domainInput(in Input, baseURL string) DomainInput {
	di := DomainInput{
		Override: in.DomainOverride,
		Leaks:    in.Leaks,
		Assets:   in.Assets,
		LiveHost: in.LiveHost,
		BaseURL:  baseURL,
	}
	if in.Connection != nil {
		di.InspectedHost = in.Connection.InspectedHost
		di.ProjectID = in.Connection.ProjectID
	}
	return di
}

func nonNilFindings(findings []models.TableFinding) []models.TableFinding {
	if findings == nil {
		return []models.TableFinding{}
	}
	return findings
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
