package report

import (
	"time"

	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/models"
)

// DomainInput carries every source the report domain can come from
type DomainInput struct {
	Override      string
	Leaks         []models.LeakDetection
	Assets        []models.AssetDetection
	InspectedHost string
	LiveHost      string
	ProjectID     string
	BaseURL       string
}

// ResolveDomain picks the site a report describes. Precedence: explicit
// override, leak hosts, asset hosts, the connection's inspected host, the
// live tab host, the project's cloud host, then the base URL host.
func ResolveDomain(in DomainInput) string {
	if in.Override != "" {
		return in.Override
	}

	leakHosts := make([]hostSighting, 0, len(in.Leaks))
	for _, l := range in.Leaks {
		leakHosts = append(leakHosts, hostSighting{host: l.Host, at: l.DetectedAt})
	}
	if host := dominantHost(leakHosts); host != "" {
		return host
	}

	assetHosts := make([]hostSighting, 0, len(in.Assets))
	for _, a := range in.Assets {
		assetHosts = append(assetHosts, hostSighting{host: credential.Hostname(a.AssetURL), at: a.DetectedAt})
	}
	if host := dominantHost(assetHosts); host != "" {
		return host
	}

	switch {
	case in.InspectedHost != "":
		return in.InspectedHost
	case in.LiveHost != "":
		return in.LiveHost
	case in.ProjectID != "":
		return in.ProjectID + "." + credential.CloudDomain
	case in.BaseURL != "":
		return credential.Hostname(in.BaseURL)
	}
	return ""
}

type hostSighting struct {
	host string
	at   time.Time
}

// dominantHost returns the most frequent host, breaking ties by the most
// recent sighting
func dominantHost(sightings []hostSighting) string {
	type stat struct {
		count int
		last  time.Time
	}
	stats := map[string]*stat{}
	for _, s := range sightings {
		if s.host == "" || s.host == "unknown" {
			continue
		}
		st, ok := stats[s.host]
		if !ok {
			st = &stat{}
			stats[s.host] = st
		}
		st.count++
		if s.at.After(st.last) {
			st.last = s.at
		}
	}

	var best string
	var bestStat *stat
	for host, st := range stats {
		switch {
		case bestStat == nil,
			st.count > bestStat.count,
			st.count == bestStat.count && st.last.After(bestStat.last),
			st.count == bestStat.count && st.last.Equal(bestStat.last) && host < best:
			best, bestStat = host, st
		}
	}
	return best
}
