package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/evalabs/opswatch/internal/db"
)

// ErrStoreNotConfigured marks read operations that need the platform
// database when the engine runs in live-only mode.
var ErrStoreNotConfigured = errors.New("monitoring store is not configured")

// LatestSnapshot reconstructs one dashboard item per known check from the
// most recent persisted row. Checks that have never reported get a
// synthesized down/stale placeholder instead of being omitted, and a stale
// row that still claims up is downgraded to degraded.
func (e *Engine) LatestSnapshot(ctx context.Context) ([]ServiceStatusItem, error) {
	if e.store == nil {
		return nil, ErrStoreNotConfigured
	}

	specs := BuildSpecs(e.cfg)
	keys := make([]string, len(specs))
	for i, spec := range specs {
		keys[i] = spec.CheckKey
	}

	latest, err := e.store.LatestChecksByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	now := e.now()
	items := make([]ServiceStatusItem, 0, len(specs))

	for _, spec := range specs {
		row, ok := latest[spec.CheckKey]
		if !ok {
			items = append(items, ServiceStatusItem{
				CheckKey: spec.CheckKey,
				Name:     spec.Service,
				URL:      spec.Target,
				Status:   db.StatusDown,
				Error:    "No monitoring data yet",
				Critical: spec.Critical,
				Stale:    true,
			})
			continue
		}

		checkedAt := row.CheckedAt
		stale := now.Sub(checkedAt) > e.cfg.StaleAfter
		status := row.Status
		errMsg := ""
		if row.ErrorMessage != nil {
			errMsg = *row.ErrorMessage
		}
		if stale && status == db.StatusUp {
			status = db.StatusDegraded
			errMsg = "Monitoring data is stale"
		}

		critical := spec.Critical
		if v, ok := row.Details["critical"].(bool); ok {
			critical = v
		}

		item := ServiceStatusItem{
			CheckKey:             row.CheckKey,
			Name:                 row.Service,
			URL:                  row.Target,
			Status:               status,
			HTTPStatus:           row.HTTPStatus,
			Error:                errMsg,
			CheckedAt:            &checkedAt,
			Critical:             critical,
			ConsecutiveFailures:  row.Details.Int("consecutive_failures"),
			ConsecutiveSuccesses: row.Details.Int("consecutive_successes"),
			LastSuccessAt:        row.Details.Time("last_success_at"),
			Stale:                stale,
		}
		if row.LatencyMs != nil {
			latency := int(*row.LatencyMs)
			item.LatencyMs = &latency
		}
		items = append(items, item)
	}

	return items, nil
}

// ShouldRefresh decides whether the read path needs a fresh cycle before
// answering. Two tiers: the whole snapshot is too old (2x interval,
// floored at 30s), or any critical check is individually stale; one
// silently stuck critical check must not hide behind dozens of fresh
// healthy ones.
func (e *Engine) ShouldRefresh(items []ServiceStatusItem) bool {
	if len(items) == 0 {
		return true
	}

	refreshAfter := 2 * e.cfg.Interval
	if refreshAfter < 30*time.Second {
		refreshAfter = 30 * time.Second
	}

	var latest *time.Time
	for i := range items {
		if items[i].Critical && items[i].Stale {
			return true
		}
		if t := items[i].CheckedAt; t != nil {
			if latest == nil || t.After(*latest) {
				latest = t
			}
		}
	}

	if latest == nil {
		return true
	}
	return e.now().Sub(*latest) > refreshAfter
}

// ResultItem converts a live probe result into a dashboard item, used when
// the read path serves an unpersisted cycle.
func ResultItem(result CheckResult) ServiceStatusItem {
	checkedAt := result.CheckedAt
	item := ServiceStatusItem{
		CheckKey:             result.CheckKey,
		Name:                 result.Service,
		URL:                  result.Target,
		Status:               result.Status,
		HTTPStatus:           result.HTTPStatus,
		Error:                result.ErrorMessage,
		CheckedAt:            &checkedAt,
		Critical:             result.Critical,
		ConsecutiveFailures:  result.ConsecutiveFailures,
		ConsecutiveSuccesses: result.ConsecutiveSuccesses,
		LastSuccessAt:        result.LastSuccessAt,
		Stale:                result.Stale,
	}
	if result.LatencyMs != nil {
		latency := int(*result.LatencyMs)
		item.LatencyMs = &latency
	}
	return item
}
