package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/supaspectre/internal/models"
)

// Output formats
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatBoth  = "both"
	FormatSARIF = "sarif"
)

// Render writes rep in the named format. "both" writes text followed by
// JSON.
func Render(w io.Writer, rep *models.Report, format, version string) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		return NewTextReporter(w).Generate(rep)
	case FormatJSON:
		return NewJSONReporter(w, true).Generate(rep)
	case FormatBoth:
		if err := NewTextReporter(w).Generate(rep); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		return NewJSONReporter(w, true).Generate(rep)
	case FormatSARIF:
		return NewSARIFReporter(w, version).Generate(rep)
	default:
		return fmt.Errorf("unsupported format: %s (use text, json, both or sarif)", format)
	}
}

// ContentType returns the media type for a format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return "application/json"
	case FormatSARIF:
		return "application/sarif+json"
	default:
		return "text/plain; charset=utf-8"
	}
}
