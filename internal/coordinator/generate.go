package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/supaspectre/internal/analyzer"
	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/postgrest"
	"github.com/ppiankov/supaspectre/internal/report"
)

// ErrNothingToReport is returned when there is neither a usable connection
// nor any stored detection to build a report from
var ErrNothingToReport = errors.New("connect to Supabase or capture leak detections before generating a report")

// GenerateReport probes the active connection's tables, combines the
// findings with stored detections, persists the report and returns it.
//
// A requested project other than the stored connection's is probed with a
// key recovered from that project's asset detections, if any.
func (c *Coordinator) GenerateReport(ctx context.Context, req models.CreateReport) (models.Report, error) {
	if err := c.requireConsent(); err != nil {
		return models.Report{}, err
	}

	conn := c.connectionFor(ctx, req.ProjectID)
	projectID := req.ProjectID
	if projectID == "" && conn != nil {
		projectID = conn.ProjectID
	}
	host := req.Host
	if host == "" && conn != nil {
		host = conn.InspectedHost
	}

	var assets []models.AssetDetection
	if projectID != "" {
		assets = c.store.Assets(ctx, projectID)
	}
	var leaks []models.LeakDetection
	if host != "" {
		leaks = c.store.Leaks(ctx, host)
	}

	if !conn.Usable() && len(assets) == 0 && len(leaks) == 0 {
		return models.Report{}, ErrNothingToReport
	}

	var (
		findings []models.TableFinding
		notes    []string
	)
	if conn.Usable() {
		client := c.clients(conn)
		if client == nil {
			return models.Report{}, fmt.Errorf("no usable connection for %s", conn.ProjectID)
		}
		tables, doc, err := c.listTables(ctx, client, conn, req.Tables)
		switch {
		case err != nil && len(assets) == 0 && len(leaks) == 0:
			return models.Report{}, fmt.Errorf("%w: %w", ErrNothingToReport, err)
		case err != nil:
			c.logger.V(1).Info("table listing failed, reporting detections only",
				"project", conn.ProjectID, "error", err.Error())
			notes = append(notes, "Could not list tables: "+postgrest.TrimErrorMessage(errors.Unwrap(err).Error()))
		default:
			findings = c.analyze(ctx, client, conn, doc, tables)
		}
	}

	r := c.builder.Build(report.Input{
		Connection:     conn,
		Findings:       findings,
		Assets:         assets,
		Leaks:          leaks,
		LiveHost:       host,
		DomainOverride: req.DomainOverride,
		Notes:          notes,
	})
	if prev, ok := c.store.PreviousReport(ctx, r); ok {
		r.Trend = report.CalculateTrend(&r, prev)
	}

	saved, err := c.store.SaveReport(ctx, r)
	if err != nil {
		return r, fmt.Errorf("persist report: %w", err)
	}
	c.logger.Info("security report created", "id", saved.ID, "project", saved.ProjectID,
		"risk", string(saved.Summary.RiskLevel))
	return saved, nil
}

// listTables returns the requested tables, or every table the OpenAPI
// document exposes when none were requested
func (c *Coordinator) listTables(ctx context.Context, client *postgrest.Client, conn *models.Connection, tables []string) ([]string, *postgrest.Document, error) {
	if len(tables) > 0 {
		return tables, nil, nil
	}
	doc, err := client.FetchOpenAPI(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tables: %w", err)
	}
	tables = doc.Tables()
	c.logger.V(1).Info("tables discovered", "project", conn.ProjectID, "count", len(tables))
	return tables, doc, nil
}

func (c *Coordinator) analyze(ctx context.Context, client *postgrest.Client, conn *models.Connection, doc *postgrest.Document, tables []string) []models.TableFinding {
	a := analyzer.New(client, conn.SchemaOrDefault(),
		analyzer.WithDocument(doc),
		analyzer.WithConcurrency(c.probes),
		analyzer.WithLogger(c.logger),
	)
	return a.AnalyzeTables(ctx, tables)
}

// connectionFor returns the stored connection when it matches projectID,
// otherwise a connection rebuilt from a stored asset key for projectID
func (c *Coordinator) connectionFor(ctx context.Context, projectID string) *models.Connection {
	stored, _ := c.store.Connection(ctx)
	if projectID == "" || (stored != nil && stored.ProjectID == projectID) {
		return stored
	}
	for _, d := range c.store.AssetsWithKeys(ctx, projectID) {
		if d.APIKey == "" {
			continue
		}
		return &models.Connection{
			ProjectID:     projectID,
			Schema:        models.DefaultSchema,
			APIKey:        d.APIKey,
			Bearer:        d.APIKey,
			InspectedHost: credential.Hostname(d.AssetURL),
		}
	}
	return &models.Connection{ProjectID: projectID}
}
