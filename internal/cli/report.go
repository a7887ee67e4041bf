package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/policy"
	"github.com/ppiankov/supaspectre/internal/reporter"
	"github.com/ppiankov/supaspectre/internal/tui"
)

var (
	reportProject  string
	reportKey      string
	reportBearer   string
	reportSchema   string
	reportHost     string
	reportDomain   string
	reportTables   []string
	reportFormat   string
	reportPolicy   string
	reportTUI      bool
	reportNoPolicy bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Probe tables and build a security report",
	Long: `Report probes every table the Supabase REST surface exposes with the
given credentials, combines the results with stored key and leak
detections, saves the report, and prints it.

Without --key the stored connection (from the bridge) is used. With only
--host a leak-only report is built from stored leak detections.

Exit codes:
  0  report built, below fail_threshold and policy passed
  1  risk reached fail_threshold or a policy rule failed
  2  invalid input, or terms not accepted
  3  runtime error

Example:
  supaspectre report --project abcdefghijklmnopqrst --key eyJhbGciOi...
  supaspectre report --tables profiles,orders --format json
  supaspectre report --host app.example.com`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportProject, "project", "", "Supabase project ref")
	f.StringVar(&reportKey, "key", "", "API key to probe with (anon or publishable)")
	f.StringVar(&reportBearer, "bearer", "", "bearer token (default: the API key)")
	f.StringVar(&reportSchema, "schema", "", "schema to probe (default: public)")
	f.StringVar(&reportHost, "host", "", "application host whose leak detections to include")
	f.StringVar(&reportDomain, "domain", "", "override the domain shown in the report")
	f.StringSliceVar(&reportTables, "tables", nil, "tables to probe (default: every table in the OpenAPI document)")
	f.StringVarP(&reportFormat, "format", "f", "", "output format: text, json, both or sarif (default from config)")
	f.StringVar(&reportPolicy, "policy", "", "policy file (default: policy_file or .supaspectre-policy.yaml)")
	f.BoolVar(&reportNoPolicy, "no-policy", false, "skip policy evaluation")
	f.BoolVar(&reportTUI, "tui", false, "open the report in the interactive viewer")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format := reportFormat
	if format == "" {
		format = cfg.Format
	}
	switch format {
	case reporter.FormatText, reporter.FormatJSON, reporter.FormatBoth, reporter.FormatSARIF:
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s", format)}
	}
	if reportKey != "" && reportProject == "" {
		return &ValidationError{Message: "--key requires --project"}
	}
	if reportTUI && !stdoutIsTerminal() {
		return &ValidationError{Message: "--tui requires an interactive terminal"}
	}
	redactor.Add(reportKey, reportBearer)

	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	if err := rt.requireConsent(); err != nil {
		return err
	}

	if reportKey != "" {
		err := rt.coord.ApplyConnection(ctx, models.ApplyConnection{
			Source: models.SourceManual,
			Connection: models.Connection{
				ProjectID:     reportProject,
				APIKey:        reportKey,
				Bearer:        reportBearer,
				Schema:        reportSchema,
				InspectedHost: reportHost,
			},
		})
		if err != nil {
			return cliError(err)
		}
	}

	rep, err := rt.coord.GenerateReport(ctx, models.CreateReport{
		ProjectID:      reportProject,
		Host:           reportHost,
		DomainOverride: reportDomain,
		Tables:         reportTables,
	})
	if err != nil {
		return cliError(err)
	}

	out := cmd.OutOrStdout()
	if reportTUI {
		if err := tui.Run(&rep, accessibleHistory(rt.store.Reports(ctx), rep.ProjectID)); err != nil {
			return err
		}
	} else if err := reporter.Render(out, &rep, format, version); err != nil {
		return err
	}

	return enforce(cmd.ErrOrStderr(), &rep)
}

// enforce applies the policy file and fail_threshold to a fresh report
func enforce(w io.Writer, rep *models.Report) error {
	if !reportNoPolicy {
		path := reportPolicy
		if path == "" {
			path = cfg.PolicyFile
		}
		if path == "" {
			if wd, err := os.Getwd(); err == nil {
				path = policy.FindPolicyFile(wd)
			}
		}
		if path != "" {
			p, err := policy.LoadFromFile(path)
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}
			if p == nil && reportPolicy != "" {
				return &ValidationError{Message: fmt.Sprintf("policy file not found: %s", path)}
			}
			result := p.Evaluate(rep)
			if !result.Pass {
				fmt.Fprintf(w, "\nPolicy %s failed:\n", path)
				for _, v := range result.Violations {
					fmt.Fprintf(w, "  [%s] %s\n", v.Rule, v.Message)
				}
				return &PolicyViolationError{Violations: len(result.Violations)}
			}
			logger.V(1).Info("policy passed", "file", path)
		}
	}

	if cfg.ShouldFailOnThreshold(rep.Summary.RiskLevel) {
		return &ThresholdExceededError{Risk: rep.Summary.RiskLevel, Threshold: strings.ToLower(cfg.FailThreshold)}
	}
	return nil
}

// accessibleHistory returns the accessible table counts of projectID's
// reports, oldest first
func accessibleHistory(reports []models.Report, projectID string) []int {
	var counts []int
	for i := len(reports) - 1; i >= 0; i-- {
		if reports[i].ProjectID == projectID && !reports[i].LeakOnly {
			counts = append(counts, reports[i].Summary.AccessibleCount)
		}
	}
	return counts
}
