// Package detection persists what the scanners find: the active
// connection, asset detections per project, leak detections per host, and
// generated reports. Buckets are deduplicated, capped and expire after a TTL.
package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ppiankov/supaspectre/internal/storage"
)

// Persisted keys
const (
	KeyConnection     = "connection"
	KeyConnectionMeta = "connection_meta"
	KeyAssets         = "asset_detections"
	KeyLeaks          = "leak_detections"
	KeyReports        = "security_reports"
)

// Bucket limits
const (
	DefaultTTL         = 24 * time.Hour
	MaxAssetsPerBucket = 25
	MaxLeaksPerBucket  = 25
	MaxReports         = 10
)

// ErrInvalidDetection is returned for payloads missing a required field
var ErrInvalidDetection = errors.New("invalid detection")

// Store wraps a storage.Store with the detection bucket rules.
//
// Writes are read-modify-write of whole maps. The mutex serializes writers
// in this process only; two processes sharing one backing store can still
// drop each other's entries.
type Store struct {
	kv     storage.Store
	logger logr.Logger
	now    func() time.Time
	ttl    time.Duration
	mu     sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for storage failures
func WithLogger(l logr.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTL overrides the detection and report lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New creates a detection store on top of kv
func New(kv storage.Store, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: logr.Discard(),
		now:    time.Now,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time
func (s *Store) Now() time.Time {
	return s.now()
}

// load reads key into dst. Failures are logged and reported as "no data".
func (s *Store) load(ctx context.Context, key string, dst any) bool {
	found, err := s.kv.Get(ctx, key, dst)
	if err != nil {
		s.logger.Error(err, "failed to read store", "key", key)
		return false
	}
	return found
}

func (s *Store) expired(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return s.now().Sub(t) > s.ttl
}
