package monitor

import (
	"testing"

	"github.com/evalabs/opswatch/internal/config"
)

func TestBuildSpecs(t *testing.T) {
	t.Run("check keys are unique", func(t *testing.T) {
		cfg := config.MonitoringConfig{
			AuthBaseURL:        "https://auth.example.com",
			MessagingHealthURL: "https://wa.example.com/health",
		}
		seen := map[string]bool{}
		for _, spec := range BuildSpecs(cfg) {
			if seen[spec.CheckKey] {
				t.Errorf("duplicate check_key %q", spec.CheckKey)
			}
			seen[spec.CheckKey] = true
		}
	})

	t.Run("database pings always present", func(t *testing.T) {
		specs := BuildSpecs(config.MonitoringConfig{})
		var erp, platform bool
		for _, spec := range specs {
			switch spec.CheckKey {
			case "erp-db":
				erp = true
			case "platform-db":
				platform = true
			}
		}
		if !erp || !platform {
			t.Errorf("first-party database pings missing: erp=%v platform=%v", erp, platform)
		}
	})

	t.Run("auth checks omitted without base URL", func(t *testing.T) {
		for _, spec := range BuildSpecs(config.MonitoringConfig{}) {
			if spec.Category == CategoryAuth {
				t.Errorf("auth check %q emitted without a base URL", spec.CheckKey)
			}
		}
	})

	t.Run("auth checks emitted with base URL", func(t *testing.T) {
		cfg := config.MonitoringConfig{AuthBaseURL: "https://auth.example.com/"}
		var health, admin bool
		for _, spec := range BuildSpecs(cfg) {
			switch spec.CheckKey {
			case "auth-health":
				health = true
				if spec.Target != "https://auth.example.com/auth/v1/health" {
					t.Errorf("auth-health target = %q", spec.Target)
				}
			case "auth-admin":
				admin = true
				if spec.Kind != KindAuthAdmin {
					t.Errorf("auth-admin kind = %q", spec.Kind)
				}
			}
		}
		if !health || !admin {
			t.Errorf("auth checks missing: health=%v admin=%v", health, admin)
		}
	})

	t.Run("messaging check only when configured", func(t *testing.T) {
		for _, spec := range BuildSpecs(config.MonitoringConfig{}) {
			if spec.CheckKey == "messaging" {
				t.Fatal("messaging check emitted without URL")
			}
		}

		cfg := config.MonitoringConfig{MessagingHealthURL: "https://wa.example.com/health"}
		found := false
		for _, spec := range BuildSpecs(cfg) {
			if spec.CheckKey == "messaging" {
				found = true
			}
		}
		if !found {
			t.Error("messaging check missing despite configured URL")
		}
	})

	t.Run("billing checks emitted even without keys", func(t *testing.T) {
		// A missing key must surface as degraded via the prober, not
		// disappear from the registry.
		count := 0
		for _, spec := range BuildSpecs(config.MonitoringConfig{}) {
			if spec.Kind == KindBilling {
				count++
				if spec.APIKey != "" {
					t.Errorf("%s: unexpected api key", spec.CheckKey)
				}
			}
		}
		if count != 3 {
			t.Errorf("billing checks = %d, want 3", count)
		}
	})

	t.Run("per-org billing keys fall back to shared key", func(t *testing.T) {
		cfg := config.MonitoringConfig{
			BillingAPIKey:    "shared",
			BillingERPAPIKey: "erp-specific",
		}
		for _, spec := range BuildSpecs(cfg) {
			switch spec.CheckKey {
			case "billing-erp":
				if spec.APIKey != "erp-specific" {
					t.Errorf("billing-erp key = %q, want erp-specific", spec.APIKey)
				}
			case "billing-app", "billing-partner-erp":
				if spec.APIKey != "shared" {
					t.Errorf("%s key = %q, want shared fallback", spec.CheckKey, spec.APIKey)
				}
			}
		}
	})

	t.Run("partner backend accepts auth-rejection statuses", func(t *testing.T) {
		for _, spec := range BuildSpecs(config.MonitoringConfig{}) {
			if spec.CheckKey != "partner-erp-backend" {
				continue
			}
			want := []int{200, 401, 403}
			if len(spec.SuccessStatuses) != len(want) {
				t.Fatalf("success statuses = %v, want %v", spec.SuccessStatuses, want)
			}
			for i, code := range want {
				if spec.SuccessStatuses[i] != code {
					t.Fatalf("success statuses = %v, want %v", spec.SuccessStatuses, want)
				}
			}
		}
	})
}
