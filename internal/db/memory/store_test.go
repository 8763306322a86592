package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/dmodel/internal/db"
)

func TestGetSet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q", got)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("abc"))
	got, _ := s.Get(ctx, "k")
	got[0] = 'z'
	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}
}

func TestSetWithTTL_Expires(t *testing.T) {
	s := NewStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("unexpected error before expiry: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after expiry, got %v", err)
	}
	keys, _ := s.Scan(ctx, "*")
	if len(keys) != 0 {
		t.Errorf("Scan() = %v, want none", keys)
	}
}

func TestDelAndScan(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Set(ctx, "q:app:1", []byte("a"))
	_ = s.Set(ctx, "q:app:2", []byte("b"))
	_ = s.Set(ctx, "q:other:1", []byte("c"))

	keys, err := s.Scan(ctx, "q:app:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "q:app:1" || keys[1] != "q:app:2" {
		t.Errorf("Scan() = %v", keys)
	}

	if err := s.Del(ctx, "q:app:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Del(ctx, "missing"); err != nil {
		t.Fatalf("Del of missing key: %v", err)
	}
	keys, _ = s.Scan(ctx, "q:app:*")
	if len(keys) != 1 {
		t.Errorf("Scan() after Del = %v", keys)
	}
}

func TestScan_BadPattern(t *testing.T) {
	s := NewStore()
	_, err := s.Scan(context.Background(), "[")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestClose_DropsValues(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"))
	s.Close()
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after Close, got %v", err)
	}
}
