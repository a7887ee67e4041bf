// Package analyzer turns single-row table probes into per-table security
// findings with a policy state and risk level.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/postgrest"
)

// DefaultConcurrency bounds in-flight probes per report
const DefaultConcurrency = 4

const (
	maxColumns    = 12
	largeRowCount = 1000
)

const (
	warnAccessible = "Table responds with data using the current credentials. Enable RLS and restrictive policies."
	warnLargeCount = "Large row count is exposed; attackers can exfiltrate datasets with filter operators."
	noteProtected  = "API returned 401/403 for this table, indicating RLS or equivalent protection."
)

// Prober fetches one row of a table
type Prober interface {
	ProbeTable(ctx context.Context, table string, wantCount bool) (*postgrest.Probe, error)
}

// Analyzer probes tables for one connection. Row counts learned from
// earlier probes are reused so later probes skip the count request.
type Analyzer struct {
	prober      Prober
	schema      string
	doc         *postgrest.Document
	concurrency int
	logger      logr.Logger
	printer     *message.Printer

	mu        sync.Mutex
	rowCounts map[string]int64
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithConcurrency sets the probe pool size
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logr.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithDocument supplies the OpenAPI document for column hints
func WithDocument(doc *postgrest.Document) Option {
	return func(a *Analyzer) { a.doc = doc }
}

// WithRowCounts seeds the row count cache
func WithRowCounts(counts map[string]int64) Option {
	return func(a *Analyzer) {
		for table, n := range counts {
			a.rowCounts[table] = n
		}
	}
}

// New creates an analyzer for tables in schema
func New(p Prober, schema string, opts ...Option) *Analyzer {
	a := &Analyzer{
		prober:      p,
		schema:      schema,
		concurrency: DefaultConcurrency,
		logger:      logr.Discard(),
		printer:     message.NewPrinter(language.English),
		rowCounts:   map[string]int64{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RowCount returns the cached row count for table
func (a *Analyzer) RowCount(table string) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.rowCounts[table]
	return n, ok
}

func (a *Analyzer) rememberRowCount(table string, n int64) {
	a.mu.Lock()
	a.rowCounts[table] = n
	a.mu.Unlock()
}

// AnalyzeTables probes every table with bounded concurrency. Findings come
// back in input order; one failing table never affects the others.
func (a *Analyzer) AnalyzeTables(ctx context.Context, tables []string) []models.TableFinding {
	findings := make([]models.TableFinding, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, table := range tables {
		g.Go(func() error {
			findings[i] = a.AnalyzeTable(gctx, table)
			return nil
		})
	}
	_ = g.Wait()
	return findings
}

// AnalyzeTable probes a single table and classifies the outcome
func (a *Analyzer) AnalyzeTable(ctx context.Context, table string) models.TableFinding {
	finding := models.TableFinding{
		Name:             table,
		Columns:          []string{},
		SensitiveColumns: []string{},
		Warnings:         []string{},
		Notes:            []string{},
		PolicyState:      models.PolicyUnknown,
	}

	var rowCount *int64
	cached, haveCount := a.RowCount(table)
	if haveCount {
		rowCount = &cached
	}

	probe, err := a.prober.ProbeTable(ctx, table, !haveCount)
	if err != nil {
		a.logger.V(1).Info("table probe failed", "table", table, "error", err.Error())
		finding.Error = postgrest.TrimErrorMessage(err.Error())
		if finding.Error != "" {
			finding.Notes = append(finding.Notes, "Access failed: "+finding.Error)
		}
		return finding
	}

	status := probe.Status
	finding.Status = &status
	if !haveCount && probe.RowCount != nil {
		rowCount = probe.RowCount
		a.rememberRowCount(table, *probe.RowCount)
	}
	finding.RowCount = rowCount

	switch {
	case probe.OK():
		a.fillAccessible(&finding, probe.Columns)
	case status == 401 || status == 403:
		finding.PolicyState = models.PolicyProtected
		finding.Error = postgrest.TrimErrorMessage(probe.Body)
		finding.Notes = append(finding.Notes, noteProtected)
		if finding.Error != "" {
			finding.Notes = append(finding.Notes, "Error detail: "+finding.Error)
		}
	default:
		finding.Error = postgrest.TrimErrorMessage(probe.Body)
		if finding.Error == "" {
			finding.Error = fmt.Sprintf("HTTP %d", status)
		}
		finding.Notes = append(finding.Notes, "Access failed: "+finding.Error)
		a.logger.V(1).Info("table returned non-auth error", "table", table, "status", status)
	}
	return finding
}

func (a *Analyzer) fillAccessible(f *models.TableFinding, sampled []string) {
	f.Accessible = true
	f.PolicyState = models.PolicyLikelyUnprotected
	f.Columns = a.columnsFor(f.Name, sampled)
	if sensitive := SensitiveColumns(f.Columns); len(sensitive) > 0 {
		f.SensitiveColumns = sensitive
	}

	f.Warnings = append(f.Warnings, warnAccessible)
	if f.RowCount != nil {
		f.Notes = append(f.Notes, a.printer.Sprintf("Approximate row count: %d.", *f.RowCount))
		if *f.RowCount > largeRowCount {
			f.Warnings = append(f.Warnings, warnLargeCount)
		}
	}
	if len(f.Columns) > 0 {
		f.Notes = append(f.Notes, "Columns observed: "+strings.Join(f.Columns, ", "))
	}
	if len(f.SensitiveColumns) > 0 {
		f.Warnings = append(f.Warnings, "Sensitive-looking columns exposed: "+strings.Join(f.SensitiveColumns, ", ")+".")
	}
	f.RiskLevel = DeriveTableRiskLevel(f.Name, f.RowCount)
}

// columnsFor merges sampled row keys with schema-declared columns,
// sampled first, unique, capped
func (a *Analyzer) columnsFor(table string, sampled []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	add := func(cols []string) {
		for _, c := range cols {
			if len(out) == maxColumns {
				return
			}
			if _, ok := seen[c]; ok || c == "" {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	add(sampled)
	add(a.doc.Columns(table, a.schema))
	return out
}
