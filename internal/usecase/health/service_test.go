package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockCachePinger struct {
	err error
}

func (m *mockCachePinger) Ping(_ context.Context) error { return m.err }

type mockContentChecker struct {
	err error
}

func (m *mockContentChecker) Ready(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockContentChecker{}, &mockCachePinger{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["content"] != CheckOK {
		t.Errorf("expected content %q, got %q", CheckOK, r.Checks["content"])
	}
	if r.Checks["cache"] != CheckOK {
		t.Errorf("expected cache %q, got %q", CheckOK, r.Checks["cache"])
	}
}

func TestCheck_CacheError(t *testing.T) {
	svc := New(&mockContentChecker{}, &mockCachePinger{err: errors.New("conn refused")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["content"] != CheckOK {
		t.Errorf("expected content %q, got %q", CheckOK, r.Checks["content"])
	}
	if r.Checks["cache"] != CheckError {
		t.Errorf("expected cache %q, got %q", CheckError, r.Checks["cache"])
	}
}

func TestCheck_ContentError(t *testing.T) {
	svc := New(&mockContentChecker{err: errors.New("no manifest")}, &mockCachePinger{})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["content"] != CheckError {
		t.Errorf("expected content %q, got %q", CheckError, r.Checks["content"])
	}
}

func TestCheck_BothFail(t *testing.T) {
	svc := New(
		&mockContentChecker{err: errors.New("content down")},
		&mockCachePinger{err: errors.New("cache down")},
	)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["content"] != CheckError {
		t.Error("expected content error")
	}
	if r.Checks["cache"] != CheckError {
		t.Error("expected cache error")
	}
}

func TestCheck_NoCache(t *testing.T) {
	svc := New(&mockContentChecker{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["cache"]; ok {
		t.Error("cache check should be absent when cache is nil")
	}
}
