package detection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/storage"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestStore(c *clock) *Store {
	return New(storage.NewMemory(), WithClock(c.now))
}

func asset(url, snippet string) models.AssetDetection {
	return models.AssetDetection{ProjectID: "proj1", AssetURL: url, APIKeySnippet: snippet, APIKey: "full-" + snippet}
}

func TestRecordAssetIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newTestStore(c)

	for i := 0; i < 2; i++ {
		if _, err := s.RecordAsset(ctx, asset("https://app.example.com/main.js", "eyJhbGci...abcdef")); err != nil {
			t.Fatalf("RecordAsset: %v", err)
		}
		c.advance(time.Second)
	}
	got := s.Assets(ctx, "proj1")
	if len(got) != 1 {
		t.Fatalf("expected 1 entry after duplicate writes, got %d", len(got))
	}
	if !got[0].DetectedAt.Equal(c.t.Add(-time.Second)) {
		t.Errorf("duplicate should refresh to latest detection, got %v", got[0].DetectedAt)
	}
	if got[0].APIKey != "" {
		t.Error("Assets should strip the full key")
	}
	if withKeys := s.AssetsWithKeys(ctx, "proj1"); withKeys[0].APIKey == "" {
		t.Error("AssetsWithKeys should keep the full key")
	}
}

func TestRecordAssetCapacity(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newTestStore(c)

	for i := 0; i < 30; i++ {
		if _, err := s.RecordAsset(ctx, asset(fmt.Sprintf("https://app.example.com/%d.js", i), "snip")); err != nil {
			t.Fatalf("RecordAsset %d: %v", i, err)
		}
		c.advance(time.Minute)
	}
	got := s.Assets(ctx, "proj1")
	if len(got) != MaxAssetsPerBucket {
		t.Fatalf("expected %d entries, got %d", MaxAssetsPerBucket, len(got))
	}
	if got[0].AssetURL != "https://app.example.com/29.js" {
		t.Errorf("newest entry = %s", got[0].AssetURL)
	}
	if got[len(got)-1].AssetURL != "https://app.example.com/5.js" {
		t.Errorf("oldest kept entry = %s, want 5.js", got[len(got)-1].AssetURL)
	}
}

func TestAssetTTLEviction(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newTestStore(c)

	if _, err := s.RecordAsset(ctx, asset("https://app.example.com/old.js", "a")); err != nil {
		t.Fatal(err)
	}
	c.advance(DefaultTTL + time.Minute)
	if got := s.Assets(ctx, "proj1"); len(got) != 0 {
		t.Errorf("expired entry should not be returned without a new write, got %d", len(got))
	}
	if projects := s.AssetProjects(ctx); len(projects) != 0 {
		t.Errorf("expired project listed: %v", projects)
	}
}

func TestRecordAssetRequiresProject(t *testing.T) {
	s := newTestStore(newClock())
	_, err := s.RecordAsset(context.Background(), models.AssetDetection{ProjectID: "  "})
	if !errors.Is(err, ErrInvalidDetection) {
		t.Errorf("expected ErrInvalidDetection, got %v", err)
	}
}

func TestRecordLeakNormalizesAndDedupes(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newTestStore(c)

	leak := models.LeakDetection{SourceURL: " https://app.example.com/page ", AssetURL: "https://cdn.example.net/x.js", MatchSnippet: "sk_live_...abcdef"}
	first, err := s.RecordLeak(ctx, leak)
	if err != nil {
		t.Fatalf("RecordLeak: %v", err)
	}
	if first.Host != "app.example.com" || first.Pattern != UnknownPattern {
		t.Errorf("normalization failed: %+v", first)
	}
	c.advance(time.Second)
	if _, err := s.RecordLeak(ctx, leak); err != nil {
		t.Fatal(err)
	}
	if got := s.Leaks(ctx, "app.example.com"); len(got) != 1 {
		t.Errorf("expected dedupe to 1 entry, got %d", len(got))
	}

	unknown := s.NormalizeLeak(models.LeakDetection{})
	if unknown.Host != "unknown" {
		t.Errorf("host without urls = %q", unknown.Host)
	}
}

func TestLeakCapacityAndTTL(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newTestStore(c)

	for i := 0; i < 30; i++ {
		_, err := s.RecordLeak(ctx, models.LeakDetection{
			SourceURL:    "https://app.example.com/",
			Pattern:      "Generic Secret",
			MatchSnippet: fmt.Sprintf("secret-%02d", i),
		})
		if err != nil {
			t.Fatal(err)
		}
		c.advance(time.Minute)
	}
	if got := s.Leaks(ctx, "app.example.com"); len(got) != MaxLeaksPerBucket {
		t.Errorf("expected %d leaks, got %d", MaxLeaksPerBucket, len(got))
	}
	c.advance(DefaultTTL)
	if got := s.Leaks(ctx, "app.example.com"); len(got) != 0 {
		t.Errorf("expected all leaks to expire, got %d", len(got))
	}
}

func TestLeaksRootDomainFallback(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newTestStore(c)

	record := func(source, snippet string) {
		t.Helper()
		if _, err := s.RecordLeak(ctx, models.LeakDetection{SourceURL: source, Pattern: "Generic Secret", MatchSnippet: snippet}); err != nil {
			t.Fatal(err)
		}
		c.advance(time.Second)
	}

	record("https://app.example.com/", "sub-leak")
	if got := s.Leaks(ctx, "example.com"); len(got) != 1 || got[0].MatchSnippet != "sub-leak" {
		t.Fatalf("expected subdomain leak when root has no entries, got %+v", got)
	}

	record("https://example.com/", "root-leak")
	got := s.Leaks(ctx, "example.com")
	if len(got) != 1 || got[0].MatchSnippet != "root-leak" {
		t.Errorf("root with direct entries should not pull subdomains, got %+v", got)
	}

	got = s.Leaks(ctx, "app.example.com")
	if len(got) != 2 || got[0].MatchSnippet != "root-leak" {
		t.Errorf("subdomain query should include root bucket newest first, got %+v", got)
	}
}

func TestLeaksCountryCodeRoot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newClock())
	if _, err := s.RecordLeak(ctx, models.LeakDetection{SourceURL: "https://example.co.uk/", Pattern: "p", MatchSnippet: "m"}); err != nil {
		t.Fatal(err)
	}
	if got := s.Leaks(ctx, "app.example.co.uk"); len(got) != 1 {
		t.Errorf("expected root bucket example.co.uk to be folded in, got %d", len(got))
	}
	if hosts := s.LeakHosts(ctx); len(hosts) != 1 || hosts[0] != "example.co.uk" {
		t.Errorf("LeakHosts = %v", hosts)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, string, any) (bool, error) {
	return false, errors.New("disk on fire")
}

func TestStorageErrorsReadAsEmpty(t *testing.T) {
	s := New(failingStore{storage.NewMemory()})
	ctx := context.Background()
	if got := s.Leaks(ctx, "example.com"); got != nil {
		t.Errorf("expected no leaks, got %v", got)
	}
	if conn, meta := s.Connection(ctx); conn != nil || meta != nil {
		t.Error("expected empty connection on read failure")
	}
	if len(s.Reports(ctx)) != 0 {
		t.Error("expected no reports on read failure")
	}
}
