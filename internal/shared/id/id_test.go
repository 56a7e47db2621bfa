package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	if gen.Generate() == gen.Generate() {
		t.Error("Generated IDs should be unique")
	}
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"context", NewContextID().String(), "ctx_"},
		{"session", NewSessionID().String(), "repl_"},
		{"snapshot", NewSnapshotID().String(), "snap_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix) {
				t.Errorf("ID should start with %q, got: %s", tt.prefix, tt.id)
			}
			if !IsValid(strings.TrimPrefix(tt.id, tt.prefix)) {
				t.Errorf("ULID part should be valid: %s", tt.id)
			}
		})
	}
}

func TestContextIDValid(t *testing.T) {
	if !NewContextID().Valid() {
		t.Error("fresh context ID should be valid")
	}
	for _, bad := range []ContextID{"", "ctx_", "ctx_nope", ContextID(NewSessionID())} {
		if bad.Valid() {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestSnapshotIDValid(t *testing.T) {
	if !NewSnapshotID().Valid() {
		t.Error("fresh snapshot ID should be valid")
	}
	for _, bad := range []SnapshotID{"", "snap_../../etc/passwd", SnapshotID(NewContextID())} {
		if bad.Valid() {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewContextID().String())
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v out of range", ts)
	}

	if _, err := Timestamp("ctx_garbage"); err == nil {
		t.Error("expected parse error")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, perWorker = 8, 100
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := NewContextID().String()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}
