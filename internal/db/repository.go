package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	ErrIssueNotFound        = errors.New("issue not found")
	ErrIssueAlreadyResolved = errors.New("issue is already resolved")
)

// Repository runs against either the pool or, inside InTx, a transaction.
// The q field is the current query target; methods never touch db directly.
type Repository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

func NewConnection(databaseURL string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db}
}

// InTx runs fn against a transaction-scoped view of the repository,
// committing on nil and rolling back on error. Nested calls reuse the
// surrounding transaction.
func (r *Repository) InTx(ctx context.Context, fn func(*Repository) error) error {
	if _, ok := r.q.(*sqlx.Tx); ok {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Check rows

func (r *Repository) InsertCheck(ctx context.Context, row *CheckRow) error {
	query := `
        INSERT INTO monitoring_checks (
            id, check_key, service, target, status,
            http_status, latency_ms, error_message, details, checked_at
        ) VALUES (
            :id, :check_key, :service, :target, :status,
            :http_status, :latency_ms, :error_message, :details, :checked_at
        )`

	_, err := sqlx.NamedExecContext(ctx, r.q, query, row)
	return err
}

func (r *Repository) LatestCheckByKey(ctx context.Context, checkKey string) (*CheckRow, error) {
	var row CheckRow
	query := `
        SELECT * FROM monitoring_checks
        WHERE check_key = $1
        ORDER BY checked_at DESC
        LIMIT 1`

	err := sqlx.GetContext(ctx, r.q, &row, query, checkKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) LatestChecksByKeys(ctx context.Context, checkKeys []string) (map[string]*CheckRow, error) {
	if len(checkKeys) == 0 {
		return map[string]*CheckRow{}, nil
	}

	query, args, err := sqlx.In(`
        SELECT DISTINCT ON (check_key) * FROM monitoring_checks
        WHERE check_key IN (?)
        ORDER BY check_key, checked_at DESC`, checkKeys)
	if err != nil {
		return nil, err
	}

	rows := []*CheckRow{}
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, err
	}

	latest := make(map[string]*CheckRow, len(rows))
	for _, row := range rows {
		latest[row.CheckKey] = row
	}
	return latest, nil
}

func (r *Repository) ListChecks(ctx context.Context, service string, limit int) ([]*CheckRow, error) {
	checks := []*CheckRow{}
	if service != "" {
		query := `
            SELECT * FROM monitoring_checks
            WHERE service = $1
            ORDER BY checked_at DESC
            LIMIT $2`
		err := sqlx.SelectContext(ctx, r.q, &checks, query, service, limit)
		return checks, err
	}

	query := `
        SELECT * FROM monitoring_checks
        ORDER BY checked_at DESC
        LIMIT $1`
	err := sqlx.SelectContext(ctx, r.q, &checks, query, limit)
	return checks, err
}

// Issues

func (r *Repository) ListIssues(ctx context.Context, status, severity string) ([]*Issue, error) {
	issues := []*Issue{}
	query := `SELECT * FROM monitoring_issues`
	args := []interface{}{}

	conditions := []string{}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if severity != "" {
		args = append(args, severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_seen_at DESC"

	err := sqlx.SelectContext(ctx, r.q, &issues, query, args...)
	return issues, err
}

func (r *Repository) IssueByFingerprint(ctx context.Context, fingerprint string) (*Issue, error) {
	var issue Issue
	query := `SELECT * FROM monitoring_issues WHERE fingerprint = $1`

	err := sqlx.GetContext(ctx, r.q, &issue, query, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *Repository) IssueByID(ctx context.Context, id string) (*Issue, error) {
	var issue Issue
	query := `SELECT * FROM monitoring_issues WHERE id = $1`

	err := sqlx.GetContext(ctx, r.q, &issue, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *Repository) CreateIssue(ctx context.Context, issue *Issue) error {
	query := `
        INSERT INTO monitoring_issues (
            id, fingerprint, source, category, severity, status,
            title, summary, occurrences, sample_payload, context_payload,
            first_seen_at, last_seen_at, acknowledged_at, resolved_at
        ) VALUES (
            :id, :fingerprint, :source, :category, :severity, :status,
            :title, :summary, :occurrences, :sample_payload, :context_payload,
            :first_seen_at, :last_seen_at, :acknowledged_at, :resolved_at
        )`

	_, err := sqlx.NamedExecContext(ctx, r.q, query, issue)
	return err
}

func (r *Repository) UpdateIssue(ctx context.Context, issue *Issue) error {
	query := `
        UPDATE monitoring_issues SET
            category = :category,
            severity = :severity,
            status = :status,
            title = :title,
            summary = :summary,
            occurrences = :occurrences,
            sample_payload = :sample_payload,
            context_payload = :context_payload,
            last_seen_at = :last_seen_at,
            acknowledged_at = :acknowledged_at,
            resolved_at = :resolved_at
        WHERE id = :id`

	_, err := sqlx.NamedExecContext(ctx, r.q, query, issue)
	return err
}

// AcknowledgeIssue is a manual operator override. It loads, validates and
// updates the issue in one transaction so concurrent runner updates cannot
// interleave.
func (r *Repository) AcknowledgeIssue(ctx context.Context, id string, at time.Time) (*Issue, error) {
	var acked *Issue
	err := r.InTx(ctx, func(tx *Repository) error {
		issue, err := tx.IssueByID(ctx, id)
		if err != nil {
			return err
		}
		if issue == nil {
			return ErrIssueNotFound
		}
		if issue.Status == IssueResolved {
			return ErrIssueAlreadyResolved
		}

		issue.Status = IssueAcknowledged
		issue.AcknowledgedAt = &at
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		acked = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acked, nil
}

// ResolveIssue force-resolves regardless of streak state; the next failing
// cycle may legitimately reopen it.
func (r *Repository) ResolveIssue(ctx context.Context, id string, at time.Time) (*Issue, error) {
	var resolved *Issue
	err := r.InTx(ctx, func(tx *Repository) error {
		issue, err := tx.IssueByID(ctx, id)
		if err != nil {
			return err
		}
		if issue == nil {
			return ErrIssueNotFound
		}

		issue.Status = IssueResolved
		issue.ResolvedAt = &at
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		resolved = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

type Overview struct {
	OpenCritical  int `json:"open_critical" db:"open_critical"`
	OpenHigh      int `json:"open_high" db:"open_high"`
	TotalOpen     int `json:"total_open" db:"total_open"`
	ResolvedToday int `json:"resolved_today" db:"resolved_today"`
}

func (r *Repository) OverviewCounts(ctx context.Context) (*Overview, error) {
	var o Overview
	todayStart := time.Now().UTC().Truncate(24 * time.Hour)

	query := `
        SELECT
            COUNT(*) FILTER (WHERE status IN ('open', 'acknowledged') AND severity = 'critical') AS open_critical,
            COUNT(*) FILTER (WHERE status IN ('open', 'acknowledged') AND severity = 'high') AS open_high,
            COUNT(*) FILTER (WHERE status IN ('open', 'acknowledged')) AS total_open,
            COUNT(*) FILTER (WHERE status = 'resolved' AND resolved_at >= $1) AS resolved_today
        FROM monitoring_issues`

	err := sqlx.GetContext(ctx, r.q, &o, query, todayStart)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
