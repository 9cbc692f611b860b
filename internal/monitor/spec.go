package monitor

import (
	"time"

	"github.com/evalabs/opswatch/internal/db"
)

// Kind selects which prober strategy runs for a check. The set is closed:
// the registry decides the kind once per spec and the engine dispatches
// through a map built at construction.
type Kind string

const (
	KindHTTP       Kind = "http"
	KindPrimaryDB  Kind = "primary_db"
	KindPlatformDB Kind = "platform_db"
	KindExternalDB Kind = "external_db"
	KindOpenAI     Kind = "openai"
	KindBilling    Kind = "billing"
	KindAuthAdmin  Kind = "auth_admin"
)

const (
	CategoryDatabase  = "database"
	CategoryAPI       = "api"
	CategoryFrontend  = "frontend"
	CategoryBilling   = "billing"
	CategoryAuth      = "auth"
	CategoryMessaging = "messaging"
	CategoryAI        = "ai"
)

// CheckSpec identifies one monitored target. Specs are rebuilt from
// configuration every cycle and never persisted.
type CheckSpec struct {
	CheckKey        string
	Service         string
	Target          string
	Critical        bool
	Category        string
	Kind            Kind
	Headers         map[string]string
	SuccessStatuses []int
	APIKey          string
}

// CheckResult is the outcome of one probe execution. All failure modes are
// encoded here; probers never return errors.
type CheckResult struct {
	CheckKey     string                 `json:"check_key"`
	Service      string                 `json:"service"`
	Target       string                 `json:"target"`
	Status       db.CheckStatus         `json:"status"`
	Critical     bool                   `json:"critical"`
	Category     string                 `json:"category"`
	CheckedAt    time.Time              `json:"checked_at"`
	HTTPStatus   *int                   `json:"http_status,omitempty"`
	LatencyMs    *float64               `json:"latency_ms,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`

	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastSuccessAt        *time.Time `json:"last_success_at,omitempty"`
	Stale                bool       `json:"stale"`
}

// ServiceStatusItem is one dashboard entry, reconstructed from the most
// recent persisted row (or synthesized when a check has never reported).
type ServiceStatusItem struct {
	CheckKey             string         `json:"check_key"`
	Name                 string         `json:"name"`
	URL                  string         `json:"url"`
	Status               db.CheckStatus `json:"status"`
	LatencyMs            *int           `json:"latency_ms,omitempty"`
	HTTPStatus           *int           `json:"http_status,omitempty"`
	Error                string         `json:"error,omitempty"`
	CheckedAt            *time.Time     `json:"checked_at,omitempty"`
	Critical             bool           `json:"critical"`
	ConsecutiveFailures  int            `json:"consecutive_failures"`
	ConsecutiveSuccesses int            `json:"consecutive_successes"`
	LastSuccessAt        *time.Time     `json:"last_success_at,omitempty"`
	Stale                bool           `json:"stale"`
}
