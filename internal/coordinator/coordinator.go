// Package coordinator owns the long-lived detection state: the per-tab
// detection cache, the panel-open debounce, consent, and the event hub.
// Every inbound message is handled here.
package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/patrickmn/go-cache"

	"github.com/ppiankov/supaspectre/internal/analyzer"
	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/detection"
	"github.com/ppiankov/supaspectre/internal/leakscan"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/postgrest"
	"github.com/ppiankov/supaspectre/internal/report"
	"github.com/ppiankov/supaspectre/internal/storage"
)

// PanelCooldown suppresses repeated panel-open requests for one tab
const PanelCooldown = 5 * time.Second

const globalCacheKey = "global"

// ClientFactory builds the REST client used to probe a connection
type ClientFactory func(conn *models.Connection) *postgrest.Client

// cachedDetection is the last connection seen for a tab
type cachedDetection struct {
	projectID string
	apiKey    string
	schema    string
}

// Coordinator routes detections into the store and builds reports
type Coordinator struct {
	store    *detection.Store
	kv       storage.Store
	scanner  *leakscan.Scanner
	builder  *report.Builder
	hub      *Hub
	clients  ClientFactory
	logger   logr.Logger
	now      func() time.Time
	probes   int
	cooldown time.Duration

	tabCache   *cache.Cache
	panelOpens *cache.Cache
	tabHosts   *cache.Cache

	mu        sync.RWMutex
	consented bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(l logr.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithScanner replaces the default leak scanner
func WithScanner(s *leakscan.Scanner) Option {
	return func(c *Coordinator) { c.scanner = s }
}

// WithBuilder replaces the default report builder
func WithBuilder(b *report.Builder) Option {
	return func(c *Coordinator) { c.builder = b }
}

// WithClientFactory replaces how REST clients are built
func WithClientFactory(f ClientFactory) Option {
	return func(c *Coordinator) { c.clients = f }
}

// WithProbeConcurrency bounds table probes per report
func WithProbeConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.probes = n
		}
	}
}

// WithPanelCooldown overrides PanelCooldown
func WithPanelCooldown(d time.Duration) Option {
	return func(c *Coordinator) { c.cooldown = d }
}

// WithHub shares an existing event hub
func WithHub(h *Hub) Option {
	return func(c *Coordinator) { c.hub = h }
}

// New creates a coordinator over the detection store and the raw key-value
// store that holds consent. Consent is loaded before New returns.
func New(ctx context.Context, store *detection.Store, kv storage.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		kv:       kv,
		scanner:  leakscan.MustDefault(),
		hub:      NewHub(),
		clients:  func(conn *models.Connection) *postgrest.Client { return postgrest.New(conn) },
		logger:   logr.Discard(),
		now:      time.Now,
		probes:   analyzer.DefaultConcurrency,
		cooldown: PanelCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.builder == nil {
		c.builder = report.NewBuilder(report.WithClock(c.now), report.WithLogger(c.logger))
	}
	c.tabCache = cache.New(cache.NoExpiration, 0)
	c.panelOpens = cache.New(c.cooldown, time.Minute)
	c.tabHosts = cache.New(cache.NoExpiration, 0)
	c.RefreshConsent(ctx)
	return c
}

// Hub returns the event hub
func (c *Coordinator) Hub() *Hub {
	return c.hub
}

// Store returns the detection store
func (c *Coordinator) Store() *detection.Store {
	return c.store
}

func tabCacheKey(tabID int) string {
	if tabID <= 0 {
		return globalCacheKey
	}
	return "tab:" + strconv.Itoa(tabID)
}

func (c *Coordinator) publish(t EventType, tabID int) {
	if tabID <= 0 {
		return
	}
	c.hub.Publish(Event{Type: t, TabID: tabID, At: c.now().UTC()})
}

// TabHost returns the last known page host for a tab
func (c *Coordinator) TabHost(tabID int) string {
	if v, ok := c.tabHosts.Get(tabCacheKey(tabID)); ok {
		return v.(string)
	}
	return ""
}

// DetectSupabaseRequest turns an observed request into the active
// connection. Inputs without a usable key or project are skipped.
// Repeated identical detections for a tab are no-ops.
func (c *Coordinator) DetectSupabaseRequest(ctx context.Context, req models.SupabaseRequest) error {
	if err := c.requireConsent(); err != nil {
		return err
	}
	apiKey, ok := credential.CleanAPIKey(req.APIKey)
	if !ok {
		return nil
	}
	projectID, ok := credential.DetermineProjectID(req.URL, apiKey)
	if !ok {
		return nil
	}
	schema := credential.NormalizeSchema(req.Schema)

	key := tabCacheKey(req.TabID)
	seen := cachedDetection{projectID: projectID, apiKey: apiKey, schema: schema}
	if prev, ok := c.tabCache.Get(key); ok && prev.(cachedDetection) == seen {
		return nil
	}
	c.tabCache.Set(key, seen, cache.NoExpiration)

	conn := models.Connection{
		ProjectID:     projectID,
		Schema:        schema,
		APIKey:        apiKey,
		Bearer:        apiKey,
		InspectedHost: c.TabHost(req.TabID),
	}
	meta := models.ConnectionMeta{Source: models.SourceDetector, UpdatedAt: c.now()}
	if req.TabID > 0 {
		meta.TabID = req.TabID
	}

	c.publish(EventShowIndicator, req.TabID)

	current, _ := c.store.Connection(ctx)
	if current.SameTarget(&conn) {
		return c.store.TouchConnectionMeta(ctx, meta)
	}
	if err := c.store.SetConnection(ctx, conn, meta); err != nil {
		return err
	}
	c.logger.V(1).Info("connection detected", "project", projectID, "schema", schema,
		"key", leakscan.SummarizeLeakMatch(apiKey), "tab", req.TabID)
	c.OpenPanel(req.TabID, false)
	return nil
}

// ApplyConnection stores a connection supplied by a user or a developer
// tool. The schema defaults to public and the bearer to the api key.
func (c *Coordinator) ApplyConnection(ctx context.Context, msg models.ApplyConnection) error {
	if err := c.requireConsent(); err != nil {
		return err
	}
	conn := msg.Connection
	conn.Schema = credential.NormalizeSchema(conn.Schema)
	if key, ok := credential.CleanAPIKey(conn.APIKey); ok {
		conn.APIKey = key
	}
	if bearer, ok := credential.CleanAPIKey(conn.Bearer); ok {
		conn.Bearer = bearer
	}
	source := msg.Source
	if source == "" {
		source = models.SourceDevtools
	}
	meta := models.ConnectionMeta{Source: source, UpdatedAt: c.now(), TabID: msg.TabID}
	if err := c.store.SetConnection(ctx, conn, meta); err != nil {
		return fmt.Errorf("apply connection: %w", err)
	}
	return nil
}

// TabUpdated handles a navigation. Navigating to the database host keeps
// the detection; anything else clears it.
func (c *Coordinator) TabUpdated(ctx context.Context, msg models.TabUpdated) error {
	if msg.URL == "" || credential.IsSupabaseURL(msg.URL) {
		return nil
	}
	if host := credential.Hostname(msg.URL); host != "" && msg.TabID > 0 {
		c.tabHosts.Set(tabCacheKey(msg.TabID), host, cache.NoExpiration)
	}
	return c.ClearTab(ctx, msg.TabID)
}

// TabRemoved forgets everything about a closed tab
func (c *Coordinator) TabRemoved(ctx context.Context, msg models.TabRemoved) error {
	c.panelOpens.Delete(tabCacheKey(msg.TabID))
	err := c.ClearTab(ctx, msg.TabID)
	c.tabHosts.Delete(tabCacheKey(msg.TabID))
	return err
}

// ClearTab drops a tab's cached detection and hides its indicator. The
// stored connection is cleared only if the detector wrote it for this tab.
func (c *Coordinator) ClearTab(ctx context.Context, tabID int) error {
	if tabID <= 0 {
		return nil
	}
	c.tabCache.Delete(tabCacheKey(tabID))
	c.publish(EventHideIndicator, tabID)

	conn, meta := c.store.Connection(ctx)
	if meta == nil || meta.Source != models.SourceDetector || meta.TabID != tabID {
		return nil
	}
	cleared := models.ConnectionMeta{Source: models.SourceDetector, UpdatedAt: c.now(), TabID: tabID}
	if conn == nil {
		cleared.Cleared = true
		return c.store.TouchConnectionMeta(ctx, cleared)
	}
	c.logger.V(1).Info("clearing detected connection", "tab", tabID, "project", conn.ProjectID)
	return c.store.ClearConnection(ctx, cleared)
}

// OpenPanel emits an open-panel event unless one was emitted for the tab
// within the cooldown. Force bypasses the cooldown. Reports whether the
// event was emitted.
func (c *Coordinator) OpenPanel(tabID int, force bool) bool {
	if tabID <= 0 {
		return false
	}
	key := tabCacheKey(tabID)
	if force {
		c.panelOpens.Set(key, c.now(), cache.DefaultExpiration)
	} else if err := c.panelOpens.Add(key, c.now(), cache.DefaultExpiration); err != nil {
		return false
	}
	c.publish(EventOpenPanel, tabID)
	return true
}

// CloseOverlay emits a close-overlay event for a tab
func (c *Coordinator) CloseOverlay(tabID int) {
	c.publish(EventCloseOverlay, tabID)
}

// RecordAssetDetection stores an asset detection produced outside this
// process
func (c *Coordinator) RecordAssetDetection(ctx context.Context, d models.AssetDetection) (models.AssetDetection, error) {
	if err := c.requireConsent(); err != nil {
		return d, err
	}
	if d.APIKeySnippet == "" && d.APIKey != "" {
		d.APIKeySnippet = leakscan.SummarizeLeakMatch(d.APIKey)
	}
	return c.store.RecordAsset(ctx, d)
}

// RecordLeak stores a leak detection produced outside this process
func (c *Coordinator) RecordLeak(ctx context.Context, d models.LeakDetection) (models.LeakDetection, error) {
	if err := c.requireConsent(); err != nil {
		return d, err
	}
	return c.store.RecordLeak(ctx, d)
}
