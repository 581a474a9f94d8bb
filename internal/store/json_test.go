package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewJSONStore(t *testing.T) {
	tmpDir := t.TempDir()
	jsonPath := filepath.Join(tmpDir, "test.json")

	store, err := NewJSONStore(jsonPath)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("NewJSONStore() returned nil store")
	}
}

func TestJSONStore_Commands(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "test.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer store.Close()

	testCommands(t, store)
}

func TestMemoryStore_Commands(t *testing.T) {
	testCommands(t, NewMemoryStore())
}

func TestJSONStore_Persistence(t *testing.T) {
	ctx := context.Background()
	jsonPath := filepath.Join(t.TempDir(), "test.json")

	store, err := NewJSONStore(jsonPath)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	if err := store.SAdd(ctx, "job_history", "ReportJob"); err != nil {
		t.Fatalf("SAdd() error = %v", err)
	}
	if _, err := store.Incr(ctx, "job_history.ReportJob.total_failed"); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}

	if _, err := os.Stat(jsonPath); err != nil {
		t.Fatalf("JSON file was not written: %v", err)
	}

	reopened, err := NewJSONStore(jsonPath)
	if err != nil {
		t.Fatalf("NewJSONStore() reopen error = %v", err)
	}

	members, _ := reopened.SMembers(ctx, "job_history")
	if len(members) != 1 || members[0] != "ReportJob" {
		t.Errorf("SMembers() after reopen = %v", members)
	}
	v, ok, _ := reopened.Get(ctx, "job_history.ReportJob.total_failed")
	if !ok || v != "1" {
		t.Errorf("Get() after reopen = %q, %v", v, ok)
	}
}

func TestNewJSONStore_LoadCorrupt(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "test.json")
	if err := os.WriteFile(jsonPath, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewJSONStore(jsonPath); err == nil {
		t.Error("NewJSONStore() with corrupt file should return error")
	}
}

func TestJSONStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("run-%d", i)
			if _, err := store.LPush(ctx, "list", id); err != nil {
				t.Errorf("LPush() error = %v", err)
			}
			if _, err := store.Incr(ctx, "total"); err != nil {
				t.Errorf("Incr() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	n, _ := store.LLen(ctx, "list")
	if n != 10 {
		t.Errorf("LLen() = %d, want 10", n)
	}
	total, _, _ := store.Get(ctx, "total")
	if total != "10" {
		t.Errorf("total = %s, want 10", total)
	}
}
