package report

import (
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ppiankov/supaspectre/internal/models"
)

var (
	criticalLeakPattern = regexp.MustCompile(`service|secret|token|aws|github|slack|twilio|discord|private|bearer`)
	highLeakPattern     = regexp.MustCompile(`key|api|auth`)
)

// DeriveLeakRisk scores leak detections by the vendor and secret words in
// their pattern name and snippet. Returns "" for no leaks.
func DeriveLeakRisk(leaks []models.LeakDetection) models.RiskLevel {
	if len(leaks) == 0 {
		return ""
	}
	level := models.RiskMedium
	for _, leak := range leaks {
		haystack := strings.ToLower(leak.Pattern + " " + leak.MatchSnippet)
		switch {
		case criticalLeakPattern.MatchString(haystack):
			return models.RiskCritical
		case highLeakPattern.MatchString(haystack):
			level = models.Elevate(level, models.RiskHigh)
		}
	}
	return level
}
