package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/db"
	"github.com/evalabs/opswatch/internal/monitor"
)

// SlackNotifier posts issue transitions to a single configured incoming
// webhook. Alerting is optional and best effort: an empty URL is a silent
// no-op and transport failures are logged, never propagated, so a broken
// notification channel cannot stop issues from being tracked.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

func NewSlackNotifier(webhookURL string, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func eventPrefix(event monitor.IssueEvent) string {
	switch event {
	case monitor.EventOpened:
		return "Issue opened"
	case monitor.EventReopened:
		return "Issue reopened"
	default:
		return "Issue resolved"
	}
}

func (n *SlackNotifier) Notify(ctx context.Context, event monitor.IssueEvent, issue *db.Issue, result monitor.CheckResult) {
	if n.webhookURL == "" {
		return
	}

	text := fmt.Sprintf(
		"*%s*\nService: `%s`\nSeverity: `%s`\nStatus: `%s`\nTitle: %s\nOccurrences: %d",
		eventPrefix(event),
		result.Service,
		issue.Severity,
		result.Status,
		issue.Title,
		issue.Occurrences,
	)

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		n.logger.Warn("failed to encode slack alert", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build slack alert request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("failed to send slack monitoring alert", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("slack webhook rejected monitoring alert",
			zap.Int("status", resp.StatusCode),
			zap.String("event", string(event)),
		)
	}
}
