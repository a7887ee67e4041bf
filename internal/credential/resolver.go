// Package credential resolves Supabase project identity from URLs and
// JWT-shaped keys. Every function is total: malformed input yields an empty
// result instead of an error.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ppiankov/supaspectre/internal/models"
)

// CloudDomain is the hosted database domain that project URLs live under
const CloudDomain = "supabase.co"

var projectHostPattern = regexp.MustCompile(`(?i)^([^.]+)\.supabase\.co$`)

// ExtractProjectIDFromURL returns the project subdomain of a hosted
// project URL such as https://abc123.supabase.co/rest/v1/users.
func ExtractProjectIDFromURL(rawURL string) (string, bool) {
	host := Hostname(rawURL)
	if host == "" {
		return "", false
	}
	m := projectHostPattern.FindStringSubmatch(host)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DecodeProjectRefFromKey reads the project ref out of a JWT-shaped key.
// The ref claim wins, then the first ':' part of sub, then the fourth '/'
// segment of iss.
func DecodeProjectRefFromKey(token string) (string, bool) {
	payload, ok := decodePayload(token)
	if !ok {
		return "", false
	}
	if ref, ok := payload["ref"].(string); ok && ref != "" {
		return ref, true
	}
	if sub, ok := payload["sub"].(string); ok {
		if head := strings.Split(sub, ":")[0]; head != "" {
			return head, true
		}
	}
	if iss, ok := payload["iss"].(string); ok {
		parts := strings.Split(iss, "/")
		if len(parts) > 3 && parts[3] != "" {
			return parts[3], true
		}
	}
	return "", false
}

// DetermineProjectID prefers the URL-derived project id over the token.
func DetermineProjectID(rawURL, token string) (string, bool) {
	if id, ok := ExtractProjectIDFromURL(rawURL); ok {
		return id, true
	}
	return DecodeProjectRefFromKey(token)
}

// CleanAPIKey trims a header value and strips a leading "Bearer " prefix.
func CleanAPIKey(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "Bearer ") {
		trimmed = strings.TrimSpace(trimmed[len("Bearer "):])
	}
	return trimmed, trimmed != ""
}

// NormalizeSchema trims a schema header, defaulting to public.
func NormalizeSchema(raw string) string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return models.DefaultSchema
}

// IsSupabaseURL reports whether the URL points at the hosted cloud domain.
func IsSupabaseURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	if host := Hostname(rawURL); host != "" {
		return strings.Contains(host, "."+CloudDomain)
	}
	return strings.Contains(rawURL, "."+CloudDomain)
}

// ProjectURL returns the public project URL for a project id.
func ProjectURL(projectID string) string {
	return "https://" + projectID + "." + CloudDomain
}

// BaseURL returns the REST endpoint root for a project id.
func BaseURL(projectID string) string {
	return ProjectURL(projectID) + "/rest/v1"
}

// Hostname returns the lowercase hostname of an absolute URL, or "".
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func decodePayload(token string) (map[string]any, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, false
	}
	segment := strings.NewReplacer("-", "+", "_", "/").Replace(parts[1])
	if pad := len(segment) % 4; pad != 0 {
		segment += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(segment)
	if err != nil {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return nil, false
	}
	return payload, true
}
