// Package assetscan finds Supabase project URLs and JWT-shaped keys embedded
// in static JS and JSON assets and pairs them by proximity.
package assetscan

import (
	"strings"
	"time"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/leakscan"
	"github.com/ppiankov/supaspectre/internal/models"
)

const (
	proximityWindow = 400
	labelWindow     = 80
)

// Key type labels
const (
	KeyTypeServiceRole = "service role key"
	KeyTypeSecret      = "secret"
	KeyTypeAnon        = "anon key"
	KeyTypeService     = "service key"
)

var (
	projectURLPattern = regexp.MustCompile(`(?i)https://[a-z0-9-]+\.supabase\.co`)
	tokenPattern      = regexp.MustCompile(`ey[A-Za-z0-9_-]{18,}\.[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{20,}`)
	labelPattern      = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*)["']?\s*[:=]\s*["'` + "`" + `]?\s*$`)
)

// Credential is one project key found in an asset.
type Credential struct {
	SupabaseURL string `json:"supabaseUrl"`
	ProjectID   string `json:"projectId"`
	APIKey      string `json:"apiKey"`
	KeyLabel    string `json:"keyLabel,omitempty"`
	KeyType     string `json:"keyType"`
	AssetURL    string `json:"assetUrl"`
	Offset      int    `json:"offset"`
}

// Detection converts the credential into a storable asset detection.
func (c Credential) Detection(detectedAt time.Time) models.AssetDetection {
	return models.AssetDetection{
		ProjectID:     c.ProjectID,
		SupabaseURL:   c.SupabaseURL,
		AssetURL:      c.AssetURL,
		KeyType:       c.KeyType,
		KeyLabel:      c.KeyLabel,
		APIKeySnippet: leakscan.SummarizeLeakMatch(c.APIKey),
		APIKey:        c.APIKey,
		DetectedAt:    detectedAt,
	}
}

type hit struct {
	value      string
	start, end int
}

// Scan returns credentials in token order. Tokens with no resolvable project
// are dropped.
func Scan(text, assetURL string) []Credential {
	if text == "" {
		return nil
	}
	urls := findAll(projectURLPattern, text)
	tokens := findAll(tokenPattern, text)
	if len(tokens) == 0 {
		return nil
	}

	var out []Credential
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		context := window(text, tok.start, tok.end, proximityWindow)

		projectURL := nearestURL(urls, tok)
		if projectURL == "" && strings.Contains(strings.ToLower(context), "supabase") {
			if ref, ok := credential.DecodeProjectRefFromKey(tok.value); ok {
				projectURL = credential.ProjectURL(ref)
			}
		}
		if projectURL == "" {
			continue
		}
		projectID, ok := credential.ExtractProjectIDFromURL(projectURL)
		if !ok {
			continue
		}

		key := projectURL + "|" + tok.value
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		label := inferLabel(text, tok.start)
		out = append(out, Credential{
			SupabaseURL: projectURL,
			ProjectID:   projectID,
			APIKey:      tok.value,
			KeyLabel:    label,
			KeyType:     InferKeyType(context+" "+label),
			AssetURL:    assetURL,
			Offset:      tok.start,
		})
	}
	return out
}

// InferKeyType classifies a key from the text around it, or returns ""
// when the text names no key type.
func InferKeyType(haystack string) string {
	lower := strings.ToLower(haystack)
	switch {
	case strings.Contains(lower, "service_role"), strings.Contains(lower, "service-role"):
		return KeyTypeServiceRole
	case strings.Contains(lower, "secret"):
		return KeyTypeSecret
	case strings.Contains(lower, "anon"):
		return KeyTypeAnon
	case strings.Contains(lower, "service"):
		return KeyTypeService
	}
	return ""
}

// IsServiceKey reports whether an asset detection exposes a privileged key.
func IsServiceKey(d models.AssetDetection) bool {
	return strings.Contains(strings.ToLower(d.KeyType), "service") ||
		strings.Contains(strings.ToLower(d.KeyLabel), "service_role")
}

func findAll(re *regexp.Regexp, text string) []hit {
	var hits []hit
	for _, loc := range re.FindAllStringIndex(text, -1) {
		hits = append(hits, hit{value: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return hits
}

func nearestURL(urls []hit, tok hit) string {
	best, bestGap := "", proximityWindow+1
	for _, u := range urls {
		var gap int
		switch {
		case u.end <= tok.start:
			gap = tok.start - u.end
		case u.start >= tok.end:
			gap = u.start - tok.end
		default:
			gap = 0
		}
		if gap < bestGap {
			best, bestGap = u.value, gap
		}
	}
	return strings.ToLower(best)
}

func inferLabel(text string, tokenStart int) string {
	preceding := text[max(0, tokenStart-labelWindow):tokenStart]
	m := labelPattern.FindStringSubmatch(preceding)
	if m == nil {
		return ""
	}
	return m[1]
}

func window(text string, start, end, radius int) string {
	return text[max(0, start-radius):min(len(text), end+radius)]
}
