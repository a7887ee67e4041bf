package detection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/supaspectre/internal/models"
)

type assetMap map[string][]models.AssetDetection

// RecordAsset stores an asset detection under its project. A detection with
// the same asset URL and key snippet replaces the older one.
func (s *Store) RecordAsset(ctx context.Context, d models.AssetDetection) (models.AssetDetection, error) {
	d.ProjectID = strings.TrimSpace(d.ProjectID)
	if d.ProjectID == "" {
		return d, fmt.Errorf("%w: asset detection missing project id", ErrInvalidDetection)
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := assetMap{}
	s.load(ctx, KeyAssets, &m)

	bucket := []models.AssetDetection{d}
	for _, item := range m[d.ProjectID] {
		if s.expired(item.DetectedAt) {
			continue
		}
		if item.AssetURL == d.AssetURL && item.APIKeySnippet == d.APIKeySnippet {
			continue
		}
		bucket = append(bucket, item)
	}
	sortAssets(bucket)
	if len(bucket) > MaxAssetsPerBucket {
		bucket = bucket[:MaxAssetsPerBucket]
	}
	m[d.ProjectID] = bucket

	if err := s.kv.Set(ctx, KeyAssets, m); err != nil {
		return d, fmt.Errorf("store asset detections: %w", err)
	}
	return d, nil
}

// Assets returns live detections for a project, newest first, with the full
// key removed.
func (s *Store) Assets(ctx context.Context, projectID string) []models.AssetDetection {
	out := s.AssetsWithKeys(ctx, projectID)
	for i := range out {
		out[i].APIKey = ""
	}
	return out
}

// AssetsWithKeys is Assets including the full key, for the one consumer
// that applies detected keys as a connection.
func (s *Store) AssetsWithKeys(ctx context.Context, projectID string) []models.AssetDetection {
	if projectID == "" {
		return nil
	}
	m := assetMap{}
	s.load(ctx, KeyAssets, &m)
	var out []models.AssetDetection
	for _, item := range m[projectID] {
		if s.expired(item.DetectedAt) {
			continue
		}
		item.ProjectID = projectID
		out = append(out, item)
	}
	sortAssets(out)
	return out
}

// AssetProjects lists projects that have live asset detections
func (s *Store) AssetProjects(ctx context.Context) []string {
	m := assetMap{}
	s.load(ctx, KeyAssets, &m)
	var out []string
	for project, bucket := range m {
		for _, item := range bucket {
			if !s.expired(item.DetectedAt) {
				out = append(out, project)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func sortAssets(items []models.AssetDetection) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DetectedAt.After(items[j].DetectedAt)
	})
}
