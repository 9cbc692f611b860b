package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/db"
	"github.com/evalabs/opswatch/internal/metrics"
)

const issueSource = "monitoring_runner"

// IssueEvent tags the alert sent on an issue transition.
type IssueEvent string

const (
	EventOpened   IssueEvent = "opened"
	EventReopened IssueEvent = "reopened"
	EventResolved IssueEvent = "resolved"
)

// Store is the persistence surface the lifecycle manager needs.
// RepositoryStore implements it over *db.Repository; tests inject fakes.
type Store interface {
	InsertCheck(ctx context.Context, row *db.CheckRow) error
	LatestCheckByKey(ctx context.Context, checkKey string) (*db.CheckRow, error)
	LatestChecksByKeys(ctx context.Context, checkKeys []string) (map[string]*db.CheckRow, error)
	IssueByFingerprint(ctx context.Context, fingerprint string) (*db.Issue, error)
	CreateIssue(ctx context.Context, issue *db.Issue) error
	UpdateIssue(ctx context.Context, issue *db.Issue) error

	// InTx runs fn against a transactional view of the store: all writes
	// inside fn commit or roll back together.
	InTx(ctx context.Context, fn func(Store) error) error
}

// RepositoryStore adapts *db.Repository to Store, carrying transactions
// through the same interface.
type RepositoryStore struct {
	*db.Repository
}

func NewRepositoryStore(repo *db.Repository) RepositoryStore {
	return RepositoryStore{Repository: repo}
}

func (s RepositoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.Repository.InTx(ctx, func(tx *db.Repository) error {
		return fn(RepositoryStore{Repository: tx})
	})
}

// Notifier posts a human-readable alert on issue transitions. Best effort:
// implementations swallow and log their own failures.
type Notifier interface {
	Notify(ctx context.Context, event IssueEvent, issue *db.Issue, result CheckResult)
}

// Lifecycle owns all writes to the check and issue tables: it persists
// each cycle's results, advances streaks, and applies the open/reopen/
// resolve rules with hysteresis.
type Lifecycle struct {
	store             Store
	notifier          Notifier
	metrics           *metrics.Collector
	logger            *zap.Logger
	criticalThreshold int
	defaultThreshold  int
	recoveryThreshold int
}

func NewLifecycle(store Store, notifier Notifier, collector *metrics.Collector, logger *zap.Logger, criticalThreshold, defaultThreshold, recoveryThreshold int) *Lifecycle {
	if criticalThreshold < 1 {
		criticalThreshold = 1
	}
	if defaultThreshold < 1 {
		defaultThreshold = 1
	}
	if recoveryThreshold < 1 {
		recoveryThreshold = 1
	}
	return &Lifecycle{
		store:             store,
		notifier:          notifier,
		metrics:           collector,
		logger:            logger,
		criticalThreshold: criticalThreshold,
		defaultThreshold:  defaultThreshold,
		recoveryThreshold: recoveryThreshold,
	}
}

func IssueFingerprint(checkKey string) string {
	return "monitoring:" + checkKey
}

// PersistAndApplyRules writes one cycle's results and evaluates the issue
// rules for each. Results are isolated from each other: a persistence
// failure for one check is logged and the rest of the cycle proceeds, so
// one unreachable dependency never blinds the dashboard to another.
// The updated results (streaks filled in) are returned for callers that
// render them directly.
func (l *Lifecycle) PersistAndApplyRules(ctx context.Context, results []CheckResult) []CheckResult {
	for i := range results {
		if err := l.persistOne(ctx, &results[i]); err != nil {
			l.logger.Error("failed to persist check result",
				zap.String("check_key", results[i].CheckKey),
				zap.Error(err),
			)
		}
	}
	return results
}

func (l *Lifecycle) persistOne(ctx context.Context, result *CheckResult) error {
	previous, err := l.store.LatestCheckByKey(ctx, result.CheckKey)
	if err != nil {
		return fmt.Errorf("load previous check: %w", err)
	}

	// A result that does not advance this key's history is a duplicate of
	// an already-persisted cycle; replaying it must not double-count.
	if previous != nil && !result.CheckedAt.After(previous.CheckedAt) {
		l.logger.Debug("skipping duplicate check result",
			zap.String("check_key", result.CheckKey),
			zap.Time("checked_at", result.CheckedAt),
		)
		return nil
	}

	var prevDetails db.JSONB
	if previous != nil {
		prevDetails = previous.Details
	}

	result.ConsecutiveFailures, result.ConsecutiveSuccesses = ComputeStreaks(
		prevDetails.Int("consecutive_failures"),
		prevDetails.Int("consecutive_successes"),
		result.Status,
	)

	if result.Status == db.StatusUp {
		t := result.CheckedAt
		result.LastSuccessAt = &t
	} else {
		// Still down: remember when this check last worked.
		result.LastSuccessAt = prevDetails.Time("last_success_at")
	}

	details := db.JSONB{
		"critical":              result.Critical,
		"category":              result.Category,
		"consecutive_failures":  result.ConsecutiveFailures,
		"consecutive_successes": result.ConsecutiveSuccesses,
		"last_success_at":       nil,
	}
	if result.LastSuccessAt != nil {
		details["last_success_at"] = result.LastSuccessAt.Format(time.RFC3339)
	}
	for k, v := range result.Details {
		details[k] = v
	}

	row := &db.CheckRow{
		ID:        uuid.New().String(),
		CheckKey:  result.CheckKey,
		Service:   result.Service,
		Target:    result.Target,
		Status:    result.Status,
		Details:   details,
		CheckedAt: result.CheckedAt,
	}
	row.HTTPStatus = result.HTTPStatus
	row.LatencyMs = result.LatencyMs
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		row.ErrorMessage = &msg
	}

	// One transaction per result: the check row and the issue mutation
	// land together or not at all.
	var event IssueEvent
	var issue *db.Issue
	err = l.store.InTx(ctx, func(tx Store) error {
		if err := tx.InsertCheck(ctx, row); err != nil {
			return fmt.Errorf("insert check row: %w", err)
		}
		var ruleErr error
		event, issue, ruleErr = l.applyIssueRules(ctx, tx, *result)
		return ruleErr
	})
	if err != nil {
		return err
	}

	// Alerts go out only after the transaction commits.
	if event != "" {
		l.notify(ctx, event, issue, *result)
	}
	return nil
}

func (l *Lifecycle) failureThreshold(critical bool) int {
	if critical {
		return l.criticalThreshold
	}
	return l.defaultThreshold
}

func issueTitle(result CheckResult) string {
	if result.Status == db.StatusUp {
		return fmt.Sprintf("%s recovered", result.Service)
	}
	return fmt.Sprintf("%s is %s", result.Service, result.Status)
}

func issueSummary(result CheckResult) string {
	if result.ErrorMessage != "" {
		return result.ErrorMessage
	}
	if result.HTTPStatus != nil {
		return fmt.Sprintf("HTTP %d", *result.HTTPStatus)
	}
	return fmt.Sprintf("Status %s", result.Status)
}

func issueContext(result CheckResult) db.JSONB {
	ctx := db.JSONB{
		"check_key":            result.CheckKey,
		"critical":             result.Critical,
		"consecutive_failures": result.ConsecutiveFailures,
		"last_success_at":      nil,
	}
	if result.LastSuccessAt != nil {
		ctx["last_success_at"] = result.LastSuccessAt.Format(time.RFC3339)
	}
	return ctx
}

func issueSample(result CheckResult) db.JSONB {
	sample := db.JSONB{
		"target":      result.Target,
		"http_status": nil,
		"error":       result.ErrorMessage,
	}
	if result.HTTPStatus != nil {
		sample["http_status"] = *result.HTTPStatus
	}
	return sample
}

// applyIssueRules evaluates the open/reopen/resolve rules inside the
// caller's transaction. It returns the transition (empty when none) so the
// alert can be sent after commit.
func (l *Lifecycle) applyIssueRules(ctx context.Context, store Store, result CheckResult) (IssueEvent, *db.Issue, error) {
	fingerprint := IssueFingerprint(result.CheckKey)
	issue, err := store.IssueByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", nil, fmt.Errorf("load issue: %w", err)
	}

	failing := result.Status == db.StatusDegraded || result.Status == db.StatusDown
	shouldOpen := failing && result.ConsecutiveFailures >= l.failureThreshold(result.Critical)
	shouldResolve := result.Status == db.StatusUp && result.ConsecutiveSuccesses >= l.recoveryThreshold

	if shouldOpen {
		var event IssueEvent
		if issue == nil {
			issue = &db.Issue{
				ID:             uuid.New().String(),
				Fingerprint:    fingerprint,
				Source:         issueSource,
				Category:       result.Category,
				Severity:       ClassifySeverity(result.Status, result.Critical),
				Status:         db.IssueOpen,
				Title:          issueTitle(result),
				Summary:        issueSummary(result),
				Occurrences:    1,
				SamplePayload:  issueSample(result),
				ContextPayload: issueContext(result),
				FirstSeenAt:    result.CheckedAt,
				LastSeenAt:     result.CheckedAt,
			}
			if err := store.CreateIssue(ctx, issue); err != nil {
				return "", nil, fmt.Errorf("create issue: %w", err)
			}
			event = EventOpened
		} else {
			if issue.Status == db.IssueResolved {
				issue.Status = db.IssueOpen
				issue.ResolvedAt = nil
				issue.AcknowledgedAt = nil
				event = EventReopened
			}
			issue.Severity = ClassifySeverity(result.Status, result.Critical)
			issue.Category = result.Category
			issue.Title = issueTitle(result)
			issue.Summary = issueSummary(result)
			issue.LastSeenAt = result.CheckedAt
			issue.Occurrences++
			issue.SamplePayload = issueSample(result)
			issue.ContextPayload = issueContext(result)
			if err := store.UpdateIssue(ctx, issue); err != nil {
				return "", nil, fmt.Errorf("update issue: %w", err)
			}
		}

		return event, issue, nil
	}

	if shouldResolve && issue != nil && (issue.Status == db.IssueOpen || issue.Status == db.IssueAcknowledged) {
		resolvedAt := result.CheckedAt
		issue.Status = db.IssueResolved
		issue.ResolvedAt = &resolvedAt
		issue.LastSeenAt = result.CheckedAt
		issue.Summary = issueSummary(result)
		if err := store.UpdateIssue(ctx, issue); err != nil {
			return "", nil, fmt.Errorf("resolve issue: %w", err)
		}
		return EventResolved, issue, nil
	}

	return "", nil, nil
}

func (l *Lifecycle) notify(ctx context.Context, event IssueEvent, issue *db.Issue, result CheckResult) {
	if l.metrics != nil {
		l.metrics.RecordIssueEvent(string(event), string(issue.Severity))
	}
	l.logger.Info("issue transition",
		zap.String("event", string(event)),
		zap.String("fingerprint", issue.Fingerprint),
		zap.String("severity", string(issue.Severity)),
		zap.Int("occurrences", issue.Occurrences),
	)
	if l.notifier != nil {
		l.notifier.Notify(ctx, event, issue, result)
	}
}
