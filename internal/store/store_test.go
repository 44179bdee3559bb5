package store

import (
	"context"
	"testing"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := payload{Name: "hotdog", Count: 3}
	if err := s.Put(ctx, "test:key", want); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	var got payload
	found, err := s.Get(ctx, "test:key", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if got != want {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "test:key", payload{Name: "first"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Put(ctx, "test:key", payload{Name: "second"}); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	var got payload
	if _, err := s.Get(ctx, "test:key", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "second" {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)

	var got payload
	found, err := s.Get(context.Background(), "test:absent", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Fatal("expected missing key to report not found")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "test:key", payload{Name: "doomed"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Delete(ctx, "test:key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	var got payload
	found, err := s.Get(ctx, "test:key", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Fatal("expected key to be gone after delete")
	}
}
