package detection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/models"
)

// UnknownPattern names leaks recorded without a rule name
const UnknownPattern = "Unknown pattern"

type leakMap map[string][]models.LeakDetection

// NormalizeLeak attributes the leak to a host and fills defaults
func (s *Store) NormalizeLeak(d models.LeakDetection) models.LeakDetection {
	d.SourceURL = strings.TrimSpace(d.SourceURL)
	d.AssetURL = strings.TrimSpace(d.AssetURL)
	d.Host = credential.HostOf(d.SourceURL, d.AssetURL)
	if d.Pattern == "" {
		d.Pattern = UnknownPattern
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = s.now()
	}
	return d
}

// RecordLeak stores a leak detection under its host. A detection with the
// same source URL, pattern and snippet replaces the older one.
func (s *Store) RecordLeak(ctx context.Context, d models.LeakDetection) (models.LeakDetection, error) {
	d = s.NormalizeLeak(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	m := leakMap{}
	s.load(ctx, KeyLeaks, &m)

	bucket := []models.LeakDetection{d}
	for _, item := range m[d.Host] {
		if s.expired(item.DetectedAt) {
			continue
		}
		if item.SourceURL == d.SourceURL && item.Pattern == d.Pattern && item.MatchSnippet == d.MatchSnippet {
			continue
		}
		bucket = append(bucket, item)
	}
	sortLeaks(bucket)
	if len(bucket) > MaxLeaksPerBucket {
		bucket = bucket[:MaxLeaksPerBucket]
	}
	m[d.Host] = bucket

	if err := s.kv.Set(ctx, KeyLeaks, m); err != nil {
		return d, fmt.Errorf("store leak detections: %w", err)
	}
	return d, nil
}

// Leaks returns live leak detections for host and its root domain, newest
// first. When neither bucket has entries, buckets of sibling subdomains that
// share the root domain are returned instead.
func (s *Store) Leaks(ctx context.Context, host string) []models.LeakDetection {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return nil
	}
	m := leakMap{}
	if !s.load(ctx, KeyLeaks, &m) {
		return nil
	}

	root := credential.RootDomain(host)
	combined := append([]models.LeakDetection(nil), m[host]...)
	if root != "" && root != host {
		combined = append(combined, m[root]...)
	}
	out := s.dedupeLive(combined)
	if len(out) > 0 || root == "" {
		return out
	}

	hosts := make([]string, 0, len(m))
	for h := range m {
		if h != host && credential.RootDomain(h) == root {
			hosts = append(hosts, h)
		}
	}
	sort.Strings(hosts)
	combined = combined[:0]
	for _, h := range hosts {
		combined = append(combined, m[h]...)
	}
	return s.dedupeLive(combined)
}

// LeakHosts lists hosts that have live leak detections
func (s *Store) LeakHosts(ctx context.Context) []string {
	m := leakMap{}
	s.load(ctx, KeyLeaks, &m)
	var out []string
	for host, bucket := range m {
		if len(s.dedupeLive(bucket)) > 0 {
			out = append(out, host)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) dedupeLive(items []models.LeakDetection) []models.LeakDetection {
	seen := make(map[string]struct{}, len(items))
	var out []models.LeakDetection
	for _, item := range items {
		if s.expired(item.DetectedAt) {
			continue
		}
		key := item.Pattern + "|" + item.MatchSnippet + "|" + item.SourceURL + "|" + item.DetectedAt.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	sortLeaks(out)
	return out
}

func sortLeaks(items []models.LeakDetection) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DetectedAt.After(items[j].DetectedAt)
	})
}
