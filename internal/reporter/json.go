package reporter

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/supaspectre/internal/models"
)

// JSONReporter generates machine-readable JSON reports
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(writer io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		pretty: pretty,
	}
}

// Generate writes the full report. Full api keys never leave the store.
func (r *JSONReporter) Generate(report *models.Report) error {
	return r.write(redacted(report))
}

// GenerateSummaryOnly writes the headline numbers without per-table detail
func (r *JSONReporter) GenerateSummaryOnly(report *models.Report) error {
	summary := struct {
		ID              string                  `json:"id"`
		CreatedAt       string                  `json:"createdAt"`
		ProjectID       string                  `json:"projectId"`
		Domain          string                  `json:"domain,omitempty"`
		Summary         models.ReportSummary    `json:"summary"`
		Trend           *models.Trend           `json:"trend,omitempty"`
		Recommendations []models.Recommendation `json:"recommendations"`
	}{
		ID:              report.ID,
		CreatedAt:       report.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ProjectID:       report.ProjectID,
		Domain:          report.Domain,
		Summary:         report.Summary,
		Trend:           report.Trend,
		Recommendations: report.Recommendations,
	}
	return r.write(summary)
}

func (r *JSONReporter) write(v any) error {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	if _, err = r.writer.Write(data); err != nil {
		return err
	}
	_, err = r.writer.Write([]byte("\n"))
	return err
}

// redacted returns a copy of report with asset api keys removed
func redacted(report *models.Report) *models.Report {
	if report == nil {
		return nil
	}
	out := *report
	if len(report.AssetDetections) > 0 {
		out.AssetDetections = make([]models.AssetDetection, len(report.AssetDetections))
		for i, d := range report.AssetDetections {
			d.APIKey = ""
			out.AssetDetections[i] = d
		}
	}
	return &out
}
