package monitor

import "github.com/evalabs/opswatch/internal/db"

// ClassifyHTTPStatus maps an HTTP status code to a health value. Codes in
// successOverrides count as up regardless of range, which covers endpoints
// that correctly answer 401/403 to an unauthenticated probe.
func ClassifyHTTPStatus(code int, successOverrides []int) db.CheckStatus {
	for _, s := range successOverrides {
		if code == s {
			return db.StatusUp
		}
	}
	if code < 400 {
		return db.StatusUp
	}
	if code < 500 {
		return db.StatusDegraded
	}
	return db.StatusDown
}

// ComputeStreaks advances the consecutive failure/success counters.
// Degraded and down are both "not up" here; only issue severity
// distinguishes them.
func ComputeStreaks(prevFailures, prevSuccesses int, status db.CheckStatus) (failures, successes int) {
	if status == db.StatusUp {
		return 0, prevSuccesses + 1
	}
	return prevFailures + 1, 0
}

// ClassifySeverity derives an issue severity from the current health value
// and the check's criticality.
func ClassifySeverity(status db.CheckStatus, critical bool) db.Severity {
	switch status {
	case db.StatusDown:
		if critical {
			return db.SeverityCritical
		}
		return db.SeverityHigh
	case db.StatusDegraded:
		if critical {
			return db.SeverityHigh
		}
		return db.SeverityMedium
	}
	return db.SeverityLow
}
