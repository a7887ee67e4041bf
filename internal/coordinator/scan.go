package coordinator

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ppiankov/supaspectre/internal/assetscan"
	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/leakscan"
	"github.com/ppiankov/supaspectre/internal/models"
)

// Asset body size caps
const (
	MaxRawBodyBytes     = 1 << 20
	MaxEncodedBodyBytes = 2 << 20
)

// Skip reasons reported by ScanAssetBody
const (
	SkipTooLarge = "body exceeds size cap"
	SkipDecode   = "body is not valid base64"
	SkipEmpty    = "empty body"
	SkipExcluded = "excluded file type"
)

// ScanResult is what one asset body produced
type ScanResult struct {
	Assets  []models.AssetDetection `json:"assets"`
	Leaks   []models.LeakDetection  `json:"leaks"`
	Skipped string                  `json:"skipped,omitempty"`
}

// ScanAssetBody runs the leak scanner and the asset credential detector
// over a static asset and records what they find. Bodies over the size
// caps are skipped without error.
func (c *Coordinator) ScanAssetBody(ctx context.Context, msg models.AssetBody) (ScanResult, error) {
	res := ScanResult{Assets: []models.AssetDetection{}, Leaks: []models.LeakDetection{}}
	if err := c.requireConsent(); err != nil {
		return res, err
	}

	if c.scanner.Excluded(msg.AssetURL) {
		res.Skipped = SkipExcluded
		return res, nil
	}
	text, skip := decodeBody(msg)
	if skip != "" {
		res.Skipped = skip
		c.logger.V(2).Info("asset body skipped", "asset", msg.AssetURL, "reason", skip)
		return res, nil
	}

	now := c.now()
	for _, cred := range assetscan.Scan(text, msg.AssetURL) {
		stored, err := c.store.RecordAsset(ctx, cred.Detection(now))
		if err != nil {
			return res, err
		}
		stored.APIKey = ""
		res.Assets = append(res.Assets, stored)
	}

	for _, m := range c.scanner.Scan(text, msg.AssetURL) {
		stored, err := c.store.RecordLeak(ctx, leakFromMatch(m, msg, now))
		if err != nil {
			return res, err
		}
		res.Leaks = append(res.Leaks, stored)
	}

	if len(res.Assets) > 0 || len(res.Leaks) > 0 {
		c.logger.Info("asset exposes credentials", "asset", msg.AssetURL,
			"supabaseKeys", len(res.Assets), "leaks", len(res.Leaks))
		c.publish(EventShowIndicator, msg.TabID)
		if host := credential.Hostname(msg.PageURL); host != "" && msg.TabID > 0 {
			c.tabHosts.Set(tabCacheKey(msg.TabID), host, cache.NoExpiration)
		}
	}
	return res, nil
}

func decodeBody(msg models.AssetBody) (string, string) {
	if msg.Body == "" {
		return "", SkipEmpty
	}
	if !msg.Base64 {
		if len(msg.Body) > MaxRawBodyBytes {
			return "", SkipTooLarge
		}
		return msg.Body, ""
	}
	if len(msg.Body) > MaxEncodedBodyBytes {
		return "", SkipTooLarge
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(msg.Body))
	if err != nil {
		return "", SkipDecode
	}
	return string(decoded), ""
}

// leakFromMatch converts a scanner match into a stored detection. The raw
// secret is replaced by its redacted form everywhere it is kept.
func leakFromMatch(m leakscan.DetectionMatch, msg models.AssetBody, now time.Time) models.LeakDetection {
	snippet := leakscan.SummarizeLeakMatch(m.Match)
	source := msg.PageURL
	if source == "" {
		source = msg.AssetURL
	}
	d := models.LeakDetection{
		SourceURL:      source,
		AssetURL:       msg.AssetURL,
		Pattern:        m.Key,
		MatchSnippet:   snippet,
		ContextSnippet: strings.ReplaceAll(m.Context, m.Match, snippet),
		DetectedAt:     now,
	}
	if m.EncodedFrom != "" {
		d.EncodedSnippet = leakscan.SummarizeLeakMatch(m.EncodedFrom)
	}
	return d
}
