package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okCheck(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", okCheck))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))
	handler.RegisterChecker("outbox", NewOptionalChecker("outbox", okCheck))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["storage"].Message != "connection refused" {
		t.Errorf("unexpected storage check: %+v", response.Checks["storage"])
	}
}

func TestHealthHandler_DegradedStaysReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", okCheck))
	handler.RegisterChecker("outbox", NewOptionalChecker("outbox", func(context.Context) error {
		return errors.New("backlog too large")
	}))

	status, checks := handler.Evaluate(context.Background())
	if status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", status)
	}
	if checks["outbox"].Status != StatusDegraded {
		t.Fatalf("expected degraded outbox check, got %+v", checks["outbox"])
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("degraded component must not fail readiness, got %d", w.Code)
	}
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.SetTimeout(20 * time.Millisecond)
	handler.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	status, checks := handler.Evaluate(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("check timeout was not applied")
	}
	if status != StatusUnhealthy || checks["slow"].Message == "" {
		t.Fatalf("expected unhealthy slow check, got %s %+v", status, checks["slow"])
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPingChecker(t *testing.T) {
	if check := NewPingChecker("redis", stubPinger{}).Check(context.Background()); check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %+v", check)
	}
	if check := NewPingChecker("redis", stubPinger{err: errors.New("down")}).Check(context.Background()); check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %+v", check)
	}
}

func TestNames(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", okCheck))
	handler.RegisterChecker("catalog", NewSimpleChecker("catalog", okCheck))

	names := handler.Names()
	if len(names) != 2 || names[0] != "catalog" || names[1] != "storage" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("not ready")
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready: storage" {
		t.Errorf("expected failing component in body, got %s", w.Body.String())
	}
}

func TestSimpleChecker_Duration(t *testing.T) {
	checker := NewSimpleChecker("test", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	check := checker.Check(context.Background())

	if check.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", check.Status)
	}
	if check.DurationMs < 10 {
		t.Errorf("expected duration >= 10ms, got %dms", check.DurationMs)
	}
}

func TestEvaluate_WorstStatusWins(t *testing.T) {
	failing := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name     string
		checkers map[string]Checker
		want     Status
	}{
		{name: "no checks", checkers: map[string]Checker{}, want: StatusHealthy},
		{
			name: "degraded only",
			checkers: map[string]Checker{
				"storage": NewSimpleChecker("storage", okCheck),
				"outbox":  NewOptionalChecker("outbox", failing),
			},
			want: StatusDegraded,
		},
		{
			name: "unhealthy beats degraded",
			checkers: map[string]Checker{
				"storage": NewSimpleChecker("storage", failing),
				"outbox":  NewOptionalChecker("outbox", failing),
				"catalog": NewSimpleChecker("catalog", okCheck),
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("dev")
			for name, checker := range tt.checkers {
				handler.RegisterChecker(name, checker)
			}
			status, checks := handler.Evaluate(context.Background())
			if status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, status)
			}
			if len(checks) != len(tt.checkers) {
				t.Fatalf("expected %d checks, got %d", len(tt.checkers), len(checks))
			}
		})
	}
}
