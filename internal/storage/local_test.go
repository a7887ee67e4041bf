package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNewLocal(t *testing.T) {
	s := NewLocal("/tmp/test")
	if s.baseDir != "/tmp/test" {
		t.Errorf("expected baseDir=/tmp/test, got %s", s.baseDir)
	}
}

func TestGetStoragePath(t *testing.T) {
	s := NewLocal("/tmp/supaspectre")
	if s.GetStoragePath() != "/tmp/supaspectre" {
		t.Errorf("expected /tmp/supaspectre, got %s", s.GetStoragePath())
	}
}

func TestEnsureDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	baseDir := filepath.Join(dir, "nested", "supaspectre")
	s := NewLocal(baseDir)

	if err := s.EnsureDirectoryExists(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(baseDir, "store")); err != nil {
		t.Fatalf("expected store directory to exist: %v", err)
	}
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"local":  func(t *testing.T) Store { return NewLocal(t.TempDir()) },
		"memory": func(t *testing.T) Store { return NewMemory() },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			var got sample
			found, err := s.Get(ctx, "missing", &got)
			if err != nil || found {
				t.Fatalf("Get(missing) = %v, %v; want false, nil", found, err)
			}

			if err := s.Set(ctx, "alpha", sample{Name: "a", Count: 1}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "alpha", sample{Name: "a", Count: 2}); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			found, err = s.Get(ctx, "alpha", &got)
			if err != nil || !found {
				t.Fatalf("Get(alpha) = %v, %v", found, err)
			}
			if got.Count != 2 {
				t.Errorf("expected last write to win, got count %d", got.Count)
			}

			if err := s.Set(ctx, "beta", []string{"x"}); err != nil {
				t.Fatalf("Set beta: %v", err)
			}
			keys, err := s.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
				t.Errorf("Keys = %v", keys)
			}

			if err := s.Delete(ctx, "alpha"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "alpha"); err != nil {
				t.Fatalf("second Delete should be a no-op: %v", err)
			}
			if found, _ := s.Get(ctx, "alpha", &got); found {
				t.Error("expected alpha to be deleted")
			}
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(t.TempDir())
	for _, key := range []string{"", "../escape", `a\b`, ".hidden"} {
		if err := s.Set(ctx, key, 1); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestCorruptValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocal(dir)
	if err := s.EnsureDirectoryExists(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "store", "bad.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	var v sample
	if _, err := s.Get(ctx, "bad", &v); err == nil {
		t.Error("expected unmarshal error for corrupt value")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemory().Set(ctx, "k", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
