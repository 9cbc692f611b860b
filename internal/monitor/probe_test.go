package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/db"
)

// countingProber records invocations and the spec it was handed.
type countingProber struct {
	calls int
	last  CheckSpec
}

func (p *countingProber) Probe(_ context.Context, spec CheckSpec) CheckResult {
	p.calls++
	p.last = spec
	return newResult(spec, db.StatusUp)
}

func httpSpec(target string) CheckSpec {
	return CheckSpec{
		CheckKey: "test-http",
		Service:  "Test Service",
		Target:   target,
		Critical: true,
		Category: CategoryAPI,
		Kind:     KindHTTP,
	}
}

func TestHTTPProber(t *testing.T) {
	prober := NewHTTPProber(2*time.Second, zap.NewNop())

	t.Run("2xx is up with latency and status recorded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		result := prober.Probe(context.Background(), httpSpec(srv.URL))
		if result.Status != db.StatusUp {
			t.Fatalf("status = %q, want up", result.Status)
		}
		if result.HTTPStatus == nil || *result.HTTPStatus != 200 {
			t.Errorf("http status = %v, want 200", result.HTTPStatus)
		}
		if result.LatencyMs == nil {
			t.Error("latency not recorded")
		}
	})

	t.Run("4xx is degraded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		result := prober.Probe(context.Background(), httpSpec(srv.URL))
		if result.Status != db.StatusDegraded {
			t.Fatalf("status = %q, want degraded", result.Status)
		}
	})

	t.Run("5xx is down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		result := prober.Probe(context.Background(), httpSpec(srv.URL))
		if result.Status != db.StatusDown {
			t.Fatalf("status = %q, want down", result.Status)
		}
	})

	t.Run("declared success override rescues 401", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		spec := httpSpec(srv.URL)
		spec.SuccessStatuses = []int{200, 401, 403}
		result := prober.Probe(context.Background(), spec)
		if result.Status != db.StatusUp {
			t.Fatalf("status = %q, want up", result.Status)
		}
	})

	t.Run("missing target is degraded without network", func(t *testing.T) {
		result := prober.Probe(context.Background(), httpSpec(""))
		if result.Status != db.StatusDegraded {
			t.Fatalf("status = %q, want degraded", result.Status)
		}
		if result.ErrorMessage == "" {
			t.Error("expected explanatory error message")
		}
	})

	t.Run("custom headers are sent", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("X-Probe")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		spec := httpSpec(srv.URL)
		spec.Headers = map[string]string{"X-Probe": "opswatch"}
		prober.Probe(context.Background(), spec)
		if got != "opswatch" {
			t.Errorf("X-Probe header = %q, want opswatch", got)
		}
	})

	t.Run("transport error retries then reports down with diagnosable message", func(t *testing.T) {
		// A closed port refuses immediately on every attempt.
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		target := srv.URL
		srv.Close()

		result := prober.Probe(context.Background(), httpSpec(target))
		if result.Status != db.StatusDown {
			t.Fatalf("status = %q, want down", result.Status)
		}
		if result.ErrorMessage == "" {
			t.Fatal("error message must never be empty on transport failure")
		}
	})

	t.Run("transient failure recovered within retry budget", func(t *testing.T) {
		attempts := 0
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				// Kill the connection so the client sees a transport error.
				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					conn.Close()
				}
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		result := prober.Probe(context.Background(), httpSpec(srv.URL))
		if result.Status != db.StatusUp {
			t.Fatalf("status = %q, want up after retry", result.Status)
		}
		if attempts < 2 {
			t.Errorf("attempts = %d, want at least 2", attempts)
		}
	})
}

func TestBearerProber(t *testing.T) {
	t.Run("missing key short-circuits without network", func(t *testing.T) {
		inner := &countingProber{}
		prober := &BearerProber{HTTP: inner, Missing: "OPENAI_API_KEY is not configured"}

		spec := httpSpec("https://api.example.com")
		spec.APIKey = ""
		result := prober.Probe(context.Background(), spec)

		if result.Status != db.StatusDegraded {
			t.Fatalf("status = %q, want degraded", result.Status)
		}
		if result.ErrorMessage != "OPENAI_API_KEY is not configured" {
			t.Errorf("error = %q, want missing-config message", result.ErrorMessage)
		}
		if inner.calls != 0 {
			t.Errorf("inner prober called %d times, want 0", inner.calls)
		}
	})

	t.Run("key injected as bearer token", func(t *testing.T) {
		inner := &countingProber{}
		prober := &BearerProber{HTTP: inner, Missing: "missing"}

		spec := httpSpec("https://api.example.com")
		spec.APIKey = "sk-test"
		prober.Probe(context.Background(), spec)

		if inner.calls != 1 {
			t.Fatalf("inner prober called %d times, want 1", inner.calls)
		}
		if got := inner.last.Headers["Authorization"]; got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
	})
}

func TestServiceKeyProber(t *testing.T) {
	t.Run("missing key short-circuits without network", func(t *testing.T) {
		inner := &countingProber{}
		prober := &ServiceKeyProber{HTTP: inner, Missing: "AUTH_SERVICE_KEY is not configured"}

		result := prober.Probe(context.Background(), httpSpec("https://auth.example.com"))
		if result.Status != db.StatusDegraded {
			t.Fatalf("status = %q, want degraded", result.Status)
		}
		if inner.calls != 0 {
			t.Errorf("inner prober called %d times, want 0", inner.calls)
		}
	})

	t.Run("key sent as apikey and bearer pair", func(t *testing.T) {
		inner := &countingProber{}
		prober := &ServiceKeyProber{HTTP: inner, Missing: "missing"}

		spec := httpSpec("https://auth.example.com")
		spec.APIKey = "service-role"
		prober.Probe(context.Background(), spec)

		if got := inner.last.Headers["apikey"]; got != "service-role" {
			t.Errorf("apikey = %q, want service-role", got)
		}
		if got := inner.last.Headers["Authorization"]; got != "Bearer service-role" {
			t.Errorf("Authorization = %q, want Bearer service-role", got)
		}
	})
}

func TestExternalDBProber(t *testing.T) {
	prober := NewExternalDBProber(time.Second)

	t.Run("missing connection string is degraded", func(t *testing.T) {
		spec := CheckSpec{CheckKey: "ext-db", Service: "External DB", Kind: KindExternalDB}
		result := prober.Probe(context.Background(), spec)
		if result.Status != db.StatusDegraded {
			t.Fatalf("status = %q, want degraded", result.Status)
		}
		if result.ErrorMessage == "" {
			t.Error("expected explanatory error message")
		}
	})
}

func TestPoolProber(t *testing.T) {
	t.Run("nil pool is degraded with missing-config message", func(t *testing.T) {
		prober := NewPoolProber(nil, "PLATFORM_DATABASE_URL is not configured", time.Second)
		spec := CheckSpec{CheckKey: "platform-db", Service: "Platform Database", Kind: KindPlatformDB}

		result := prober.Probe(context.Background(), spec)
		if result.Status != db.StatusDegraded {
			t.Fatalf("status = %q, want degraded", result.Status)
		}
		if result.ErrorMessage != "PLATFORM_DATABASE_URL is not configured" {
			t.Errorf("error = %q, want missing-config message", result.ErrorMessage)
		}
	})
}

func TestNormalizePostgresURL(t *testing.T) {
	got := normalizePostgresURL("postgresql+asyncpg://u:p@host/db")
	if got != "postgresql://u:p@host/db" {
		t.Errorf("normalizePostgresURL = %q", got)
	}

	plain := "postgres://u:p@host/db"
	if normalizePostgresURL(plain) != plain {
		t.Errorf("plain URL should pass through unchanged")
	}
}
