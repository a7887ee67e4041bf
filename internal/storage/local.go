package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileSuffix = ".json"

// LocalStorage implements Store with one JSON file per key
type LocalStorage struct {
	baseDir string
	mu      sync.Mutex
}

// NewLocal creates a new local storage instance
func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{
		baseDir: baseDir,
	}
}

// Get reads and decodes the value stored under key
func (s *LocalStorage) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path(key))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Set writes the value under key, replacing any previous value
func (s *LocalStorage) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureDirectoryExists(); err != nil {
		return err
	}

	// Write through a temp file so readers never see a partial document
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

// Delete removes the file for key
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys sorted lexically
func (s *LocalStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.baseDir, "store")

	// Check if directory exists
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), fileSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.baseDir, "store", key+fileSuffix)
}

// GetStoragePath returns the full path to the storage directory
func (s *LocalStorage) GetStoragePath() string {
	return s.baseDir
}

// EnsureDirectoryExists creates the storage directory if it doesn't exist
func (s *LocalStorage) EnsureDirectoryExists() error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, "store"), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return nil
}
