package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/supaspectre/internal/models"
)

// AutoConnectWindow is how fresh connection metadata must be for a viewer
// to reconnect without user action
const AutoConnectWindow = 30 * time.Second

// Connection returns the stored connection and its metadata. Either may be
// nil when nothing is stored.
func (s *Store) Connection(ctx context.Context) (*models.Connection, *models.ConnectionMeta) {
	var conn models.Connection
	var meta models.ConnectionMeta
	var connPtr *models.Connection
	var metaPtr *models.ConnectionMeta
	if s.load(ctx, KeyConnection, &conn) {
		connPtr = &conn
	}
	if s.load(ctx, KeyConnectionMeta, &meta) {
		metaPtr = &meta
	}
	return connPtr, metaPtr
}

// SetConnection stores conn and its provenance. The schema is defaulted and
// the bearer falls back to the api key.
func (s *Store) SetConnection(ctx context.Context, conn models.Connection, meta models.ConnectionMeta) error {
	if conn.ProjectID == "" || conn.APIKey == "" {
		return fmt.Errorf("%w: connection needs project id and api key", ErrInvalidDetection)
	}
	conn.Schema = conn.SchemaOrDefault()
	conn.Bearer = conn.BearerToken()
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, KeyConnection, conn); err != nil {
		return fmt.Errorf("store connection: %w", err)
	}
	if err := s.kv.Set(ctx, KeyConnectionMeta, meta); err != nil {
		return fmt.Errorf("store connection meta: %w", err)
	}
	return nil
}

// TouchConnectionMeta refreshes only the metadata record
func (s *Store) TouchConnectionMeta(ctx context.Context, meta models.ConnectionMeta) error {
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, KeyConnectionMeta, meta); err != nil {
		return fmt.Errorf("store connection meta: %w", err)
	}
	return nil
}

// ClearConnection removes the stored connection and marks the metadata as
// cleared
func (s *Store) ClearConnection(ctx context.Context, meta models.ConnectionMeta) error {
	meta.Cleared = true
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, KeyConnection); err != nil {
		return fmt.Errorf("clear connection: %w", err)
	}
	if err := s.kv.Set(ctx, KeyConnectionMeta, meta); err != nil {
		return fmt.Errorf("store connection meta: %w", err)
	}
	return nil
}

// ShouldAutoConnect reports whether a viewer may reuse the stored connection
// without asking: it must be usable, written by the detector or devtools,
// not cleared, and updated within AutoConnectWindow.
func ShouldAutoConnect(conn *models.Connection, meta *models.ConnectionMeta, now time.Time) bool {
	if !conn.Usable() || meta == nil || meta.Cleared {
		return false
	}
	if meta.Source != models.SourceDetector && meta.Source != models.SourceDevtools {
		return false
	}
	age := now.Sub(meta.UpdatedAt)
	return age >= 0 && age <= AutoConnectWindow
}
