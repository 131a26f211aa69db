package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// startTestSession starts a session at a fixed time.
func startTestSession(t *testing.T, s *Store, title string, at int64) *AnnotationLog {
	t.Helper()
	log, err := s.StartSession(context.Background(), title, time.UnixMilli(at))
	if err != nil {
		t.Fatalf("StartSession() failed: %v", err)
	}
	return log
}
