package credential

import "strings"

// genericSecondLevel lists labels that sit under a country code TLD as a
// registrable suffix, e.g. co.uk or com.au.
var genericSecondLevel = map[string]bool{
	"com": true, "net": true, "org": true, "gov": true, "edu": true,
	"co": true, "mil": true, "gob": true, "govt": true,
}

// RootDomain approximates the registrable domain of a hostname.
// It is not a public suffix list implementation.
func RootDomain(hostname string) string {
	host := strings.Trim(strings.ToLower(strings.TrimSpace(hostname)), ".")
	if host == "" {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	last := parts[len(parts)-1]
	secondLast := parts[len(parts)-2]
	if len(last) == 2 && genericSecondLevel[secondLast] {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// HostOf attributes a detection to a host. The first non-empty URL is
// used; if it does not parse, the raw value stands in for the host.
func HostOf(urls ...string) string {
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if host := Hostname(trimmed); host != "" {
			return host
		}
		return trimmed
	}
	return "unknown"
}
