package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/reporter"
)

var (
	reportsListFormat string
	reportsListLimit  int
	reportsProject    string
	reportsShowFormat string
	exportFormat      string
	exportOutput      string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List, show and export saved reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports, newest first",
	Long: `List prints the reports kept in the detection store. Reports older
than the retention window are not shown.

Example:
  supaspectre reports list
  supaspectre reports list --project abcdefghijklmnopqrst --format json`,
	Args: cobra.NoArgs,
	RunE: runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

var reportsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved report as JSON, SARIF or text",
	Long: `Export writes a saved report for sharing or CI upload. API keys are
never included; only their redacted snippets are.

Example:
  supaspectre reports export 3f2c... --format sarif -o supaspectre.sarif
  supaspectre reports export 3f2c... --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runReportsExport,
}

func init() {
	reportsListCmd.Flags().StringVar(&reportsListFormat, "format", "text", "output format: text or json")
	reportsListCmd.Flags().IntVar(&reportsListLimit, "limit", 0, "show at most N reports (0 for all)")
	reportsListCmd.Flags().StringVar(&reportsProject, "project", "", "only reports for this project ref")

	reportsShowCmd.Flags().StringVarP(&reportsShowFormat, "format", "f", "", "output format: text, json or both (default from config)")

	reportsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", reporter.FormatJSON, "export format: json, sarif, text or both")
	reportsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")

	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsExportCmd)
}

// reportListing is the list view of a saved report
type reportListing struct {
	ID         string           `json:"id"`
	CreatedAt  string           `json:"createdAt"`
	ProjectID  string           `json:"projectId,omitempty"`
	Domain     string           `json:"domain,omitempty"`
	RiskLevel  models.RiskLevel `json:"riskLevel"`
	Tables     int              `json:"tables"`
	Accessible int              `json:"accessible"`
	Leaks      int              `json:"leaks"`
	LeakOnly   bool             `json:"leakOnly,omitempty"`
}

func runReportsList(cmd *cobra.Command, args []string) error {
	if reportsListFormat != "text" && reportsListFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", reportsListFormat)}
	}
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}

	listings := make([]reportListing, 0)
	for _, r := range rt.store.Reports(ctx) {
		if reportsProject != "" && r.ProjectID != reportsProject {
			continue
		}
		listings = append(listings, reportListing{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			ProjectID:  r.ProjectID,
			Domain:     r.Domain,
			RiskLevel:  r.Summary.RiskLevel,
			Tables:     r.Summary.TableCount,
			Accessible: r.Summary.AccessibleCount,
			Leaks:      len(r.LeakDetections),
			LeakOnly:   r.LeakOnly,
		})
		if reportsListLimit > 0 && len(listings) == reportsListLimit {
			break
		}
	}

	out := cmd.OutOrStdout()
	if reportsListFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	}
	printReportList(out, listings)
	return nil
}

func printReportList(w io.Writer, listings []reportListing) {
	if len(listings) == 0 {
		fmt.Fprintln(w, "No reports saved.")
		return
	}
	for _, l := range listings {
		target := l.ProjectID
		if l.LeakOnly || target == "" {
			target = l.Domain + " (leaks only)"
		} else if l.Domain != "" {
			target += " (" + l.Domain + ")"
		}
		fmt.Fprintf(w, "%s  %s  %-8s  %s\n", l.ID, l.CreatedAt, l.RiskLevel, target)
		if l.LeakOnly {
			fmt.Fprintf(w, "    %d leak(s)\n", l.Leaks)
		} else {
			fmt.Fprintf(w, "    %d/%d tables accessible, %d leak(s)\n", l.Accessible, l.Tables, l.Leaks)
		}
	}
	fmt.Fprintf(w, "\n%d report(s)\n", len(listings))
}

// loadReport fetches a saved report by id
func loadReport(cmd *cobra.Command, id string) (*runtime, *models.Report, error) {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	rep, ok := rt.store.Report(ctx, id)
	if !ok {
		return nil, nil, &ValidationError{Message: fmt.Sprintf("report not found: %s", id)}
	}
	return rt, rep, nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	format := reportsShowFormat
	if format == "" {
		format = cfg.Format
	}
	if format != reporter.FormatText && format != reporter.FormatJSON && format != reporter.FormatBoth {
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text, json or both)", format)}
	}
	_, rep, err := loadReport(cmd, args[0])
	if err != nil {
		return err
	}
	return reporter.Render(cmd.OutOrStdout(), rep, format, version)
}

func runReportsExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case reporter.FormatJSON, reporter.FormatSARIF, reporter.FormatText, reporter.FormatBoth:
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use json, sarif, text or both)", exportFormat)}
	}
	_, rep, err := loadReport(cmd, args[0])
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return reporter.Render(cmd.OutOrStdout(), rep, exportFormat, version)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := reporter.Render(f, rep, exportFormat, version); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report %s exported to %s\n", rep.ID, exportOutput)
	return nil
}
