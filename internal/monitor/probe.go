package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/db"
)

// Prober executes one check. Probers never return errors: every failure
// mode (network error, timeout, missing credential, non-2xx) is encoded
// into the result, because a probe failure is data, not a fault in the
// engine.
type Prober interface {
	Probe(ctx context.Context, spec CheckSpec) CheckResult
}

const (
	maxErrorMessageLen = 500
	httpRetries        = 2
	retryBackoff       = 250 * time.Millisecond
)

func newResult(spec CheckSpec, status db.CheckStatus) CheckResult {
	return CheckResult{
		CheckKey:  spec.CheckKey,
		Service:   spec.Service,
		Target:    spec.Target,
		Status:    status,
		Critical:  spec.Critical,
		Category:  spec.Category,
		CheckedAt: time.Now().UTC(),
	}
}

func failedResult(spec CheckSpec, status db.CheckStatus, message string) CheckResult {
	result := newResult(spec, status)
	result.ErrorMessage = truncate(message, maxErrorMessageLen)
	return result
}

// describeErr always yields a diagnosable string: the concrete error type
// plus its message, never empty.
func describeErr(err error) string {
	return fmt.Sprintf("%T: %v", err, err)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// HTTPProber issues a GET with a bounded timeout and classifies the
// response code. Transient transport errors are retried with a short
// linear backoff before the check is recorded as down.
type HTTPProber struct {
	client *http.Client
	logger *zap.Logger
}

func NewHTTPProber(timeout time.Duration, logger *zap.Logger) *HTTPProber {
	if timeout < time.Second {
		timeout = time.Second
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, spec CheckSpec) CheckResult {
	if spec.Target == "" {
		return failedResult(spec, db.StatusDegraded, "monitoring target is not configured")
	}

	var lastErr error
	for attempt := 0; attempt <= httpRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return failedResult(spec, db.StatusDown, describeErr(ctx.Err()))
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.Target, nil)
		if err != nil {
			return failedResult(spec, db.StatusDown, describeErr(err))
		}
		for k, v := range spec.Headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			p.logger.Debug("probe attempt failed",
				zap.String("check_key", spec.CheckKey),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		resp.Body.Close()

		latency := float64(time.Since(start).Milliseconds())
		result := newResult(spec, ClassifyHTTPStatus(resp.StatusCode, spec.SuccessStatuses))
		result.HTTPStatus = &resp.StatusCode
		result.LatencyMs = &latency
		return result
	}

	return failedResult(spec, db.StatusDown, describeErr(lastErr))
}

// PoolProber pings a first-party database through its shared, already
// pooled connection. A nil pool means the database was never configured;
// that surfaces as degraded, not an attempted connection.
type PoolProber struct {
	pool    *sqlx.DB
	missing string
	timeout time.Duration
}

func NewPoolProber(pool *sqlx.DB, missingMessage string, timeout time.Duration) *PoolProber {
	if timeout < time.Second {
		timeout = time.Second
	}
	return &PoolProber{pool: pool, missing: missingMessage, timeout: timeout}
}

func (p *PoolProber) Probe(ctx context.Context, spec CheckSpec) CheckResult {
	if p.pool == nil {
		return failedResult(spec, db.StatusDegraded, p.missing)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	var one int
	if err := p.pool.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return failedResult(spec, db.StatusDown, describeErr(err))
	}

	latency := float64(time.Since(start).Milliseconds())
	result := newResult(spec, db.StatusUp)
	result.LatencyMs = &latency
	return result
}

// ExternalDBProber pings a third party's own database over a transient,
// probe-local connection that is never pooled or reused across cycles.
type ExternalDBProber struct {
	timeout time.Duration
}

func NewExternalDBProber(timeout time.Duration) *ExternalDBProber {
	if timeout < time.Second {
		timeout = time.Second
	}
	return &ExternalDBProber{timeout: timeout}
}

func normalizePostgresURL(url string) string {
	if rest, ok := strings.CutPrefix(url, "postgresql+asyncpg://"); ok {
		return "postgresql://" + rest
	}
	return url
}

func (p *ExternalDBProber) Probe(ctx context.Context, spec CheckSpec) CheckResult {
	if spec.Target == "" {
		return failedResult(spec, db.StatusDegraded, "external database URL is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := sql.Open("postgres", normalizePostgresURL(spec.Target))
	if err != nil {
		return failedResult(spec, db.StatusDown, describeErr(err))
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return failedResult(spec, db.StatusDown, describeErr(err))
	}

	latency := float64(time.Since(start).Milliseconds())
	result := newResult(spec, db.StatusUp)
	result.LatencyMs = &latency
	return result
}

// BearerProber gates an HTTP check behind an API key sent as a bearer
// token. A missing key short-circuits to degraded without touching the
// network.
type BearerProber struct {
	HTTP    Prober
	Missing string
}

func (p *BearerProber) Probe(ctx context.Context, spec CheckSpec) CheckResult {
	if spec.APIKey == "" {
		return failedResult(spec, db.StatusDegraded, p.Missing)
	}

	keyed := spec
	keyed.Headers = mergeHeaders(spec.Headers, map[string]string{
		"Authorization": "Bearer " + spec.APIKey,
	})
	return p.HTTP.Probe(ctx, keyed)
}

// ServiceKeyProber is the bespoke variant for the auth provider's admin
// surface, which wants the secret twice: as an apikey header and as a
// bearer token.
type ServiceKeyProber struct {
	HTTP    Prober
	Missing string
}

func (p *ServiceKeyProber) Probe(ctx context.Context, spec CheckSpec) CheckResult {
	if spec.APIKey == "" {
		return failedResult(spec, db.StatusDegraded, p.Missing)
	}

	keyed := spec
	keyed.Headers = mergeHeaders(spec.Headers, map[string]string{
		"apikey":        spec.APIKey,
		"Authorization": "Bearer " + spec.APIKey,
	})
	return p.HTTP.Probe(ctx, keyed)
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
