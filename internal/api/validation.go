package api

import (
	"fmt"
	"net/url"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ppiankov/supaspectre/internal/models"
)

const (
	// MaxURLLength bounds every URL carried by a message.
	MaxURLLength = 8192

	maxKeyLength     = 4096
	maxTables        = 500
	maxSnippetLength = 512
)

var (
	schemaPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,62}$`)
	tablePattern    = regexp.MustCompile(`^[A-Za-z0-9_$.-]{1,63}$`)
	projectPattern  = regexp.MustCompile(`^[a-z0-9-]{1,63}$`)
	hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9.-]{1,253}$`)
	versionPattern  = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// ValidateMessage checks a decoded message before it reaches the
// coordinator
func ValidateMessage(msg models.Message) error {
	switch m := msg.(type) {
	case models.SupabaseRequest:
		if err := validateTabID(m.TabID); err != nil {
			return err
		}
		if err := validateURL("url", m.URL, true); err != nil {
			return err
		}
		if len(m.APIKey) > maxKeyLength {
			return fmt.Errorf("apiKey exceeds %d characters", maxKeyLength)
		}
		return validateSchema(m.Schema)
	case models.AssetBody:
		if err := validateTabID(m.TabID); err != nil {
			return err
		}
		if err := validateURL("assetUrl", m.AssetURL, true); err != nil {
			return err
		}
		return validateURL("pageUrl", m.PageURL, false)
	case models.RegisterAssetDetection:
		d := m.Detection
		if !projectPattern.MatchString(d.ProjectID) {
			return fmt.Errorf("projectId must be a lowercase project ref")
		}
		if err := validateURL("assetUrl", d.AssetURL, true); err != nil {
			return err
		}
		if err := validateURL("supabaseUrl", d.SupabaseURL, false); err != nil {
			return err
		}
		return validateSnippet("apiKeySnippet", d.APIKeySnippet)
	case models.RegisterLeak:
		d := m.Detection
		if strings.TrimSpace(d.SourceURL) == "" && strings.TrimSpace(d.AssetURL) == "" {
			return fmt.Errorf("sourceUrl or assetUrl is required")
		}
		if err := validateURL("sourceUrl", d.SourceURL, false); err != nil {
			return err
		}
		if err := validateURL("assetUrl", d.AssetURL, false); err != nil {
			return err
		}
		if err := validateSnippet("matchSnippet", d.MatchSnippet); err != nil {
			return err
		}
		return validateSnippet("contextSnippet", d.ContextSnippet)
	case models.ApplyConnection:
		c := m.Connection
		if strings.TrimSpace(c.ProjectID) == "" || strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("connection requires projectId and apiKey")
		}
		if !projectPattern.MatchString(c.ProjectID) {
			return fmt.Errorf("projectId must be a lowercase project ref")
		}
		if len(c.APIKey) > maxKeyLength || len(c.Bearer) > maxKeyLength {
			return fmt.Errorf("keys must not exceed %d characters", maxKeyLength)
		}
		switch m.Source {
		case "", models.SourceDevtools, models.SourceManual, models.SourceDetector:
		default:
			return fmt.Errorf("unsupported connection source %q", m.Source)
		}
		return validateSchema(c.Schema)
	case models.TabUpdated:
		if err := validateTabID(m.TabID); err != nil {
			return err
		}
		if len(m.URL) > MaxURLLength {
			return fmt.Errorf("url exceeds %d characters", MaxURLLength)
		}
		return nil
	case models.TabRemoved:
		return validateTabID(m.TabID)
	case models.OpenSidePanel:
		return validateTabID(m.TabID)
	case models.CloseOverlay:
		return validateTabID(m.TabID)
	case models.Consent:
		if m.Version != "" && !versionPattern.MatchString(m.Version) {
			return fmt.Errorf("version must be dotted digits")
		}
		return nil
	case models.CreateReport:
		if m.ProjectID != "" && !projectPattern.MatchString(m.ProjectID) {
			return fmt.Errorf("projectId must be a lowercase project ref")
		}
		if m.Host != "" && !hostnamePattern.MatchString(m.Host) {
			return fmt.Errorf("host must be a bare hostname")
		}
		if m.DomainOverride != "" && !hostnamePattern.MatchString(m.DomainOverride) {
			return fmt.Errorf("domainOverride must be a bare hostname")
		}
		if len(m.Tables) > maxTables {
			return fmt.Errorf("at most %d tables may be requested", maxTables)
		}
		for _, table := range m.Tables {
			if !tablePattern.MatchString(table) {
				return fmt.Errorf("invalid table name %q", table)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("message is required")
	}
	return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type())
}

func validateTabID(id int) error {
	if id < 0 {
		return fmt.Errorf("tabId must not be negative")
	}
	return nil
}

func validateURL(field, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if len(raw) > MaxURLLength {
		return fmt.Errorf("%s exceeds %d characters", field, MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", field)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	}
	return fmt.Errorf("%s must use http or https", field)
}

func validateSchema(schema string) error {
	schema = strings.TrimSpace(schema)
	if schema == "" || schemaPattern.MatchString(schema) {
		return nil
	}
	return fmt.Errorf("invalid schema %q", schema)
}

func validateSnippet(field, s string) error {
	if len(s) > maxSnippetLength {
		return fmt.Errorf("%s exceeds %d characters", field, maxSnippetLength)
	}
	return nil
}
