package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type CheckStatus string

const (
	StatusUp       CheckStatus = "up"
	StatusDegraded CheckStatus = "degraded"
	StatusDown     CheckStatus = "down"
)

type IssueStatus string

const (
	IssueOpen         IssueStatus = "open"
	IssueAcknowledged IssueStatus = "acknowledged"
	IssueResolved     IssueStatus = "resolved"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CheckRow is one probe execution, append-only, keyed by (check_key, checked_at).
// Streak state lives in Details and is recovered by reading the most recent
// row per check_key.
type CheckRow struct {
	ID           string      `json:"id" db:"id"`
	CheckKey     string      `json:"check_key" db:"check_key"`
	Service      string      `json:"service" db:"service"`
	Target       string      `json:"target" db:"target"`
	Status       CheckStatus `json:"status" db:"status"`
	HTTPStatus   *int        `json:"http_status,omitempty" db:"http_status"`
	LatencyMs    *float64    `json:"latency_ms,omitempty" db:"latency_ms"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	Details      JSONB       `json:"details,omitempty" db:"details"`
	CheckedAt    time.Time   `json:"checked_at" db:"checked_at"`
}

type Issue struct {
	ID             string      `json:"id" db:"id"`
	Fingerprint    string      `json:"fingerprint" db:"fingerprint"`
	Source         string      `json:"source" db:"source"`
	Category       string      `json:"category" db:"category"`
	Severity       Severity    `json:"severity" db:"severity"`
	Status         IssueStatus `json:"status" db:"status"`
	Title          string      `json:"title" db:"title"`
	Summary        string      `json:"summary" db:"summary"`
	Occurrences    int         `json:"occurrences" db:"occurrences"`
	SamplePayload  JSONB       `json:"sample_payload,omitempty" db:"sample_payload"`
	ContextPayload JSONB       `json:"context_payload,omitempty" db:"context_payload"`
	FirstSeenAt    time.Time   `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt     time.Time   `json:"last_seen_at" db:"last_seen_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported jsonb scan type %T", value)
	}
	return json.Unmarshal(b, j)
}

// Int reads an integer out of a JSONB blob, tolerating the float64 that
// encoding/json produces.
func (j JSONB) Int(key string) int {
	switch v := j[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func (j JSONB) Bool(key string) bool {
	v, _ := j[key].(bool)
	return v
}

func (j JSONB) Time(key string) *time.Time {
	s, ok := j[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
