package monitor

import (
	"strings"

	"github.com/evalabs/opswatch/internal/config"
)

// BuildSpecs enumerates every check for one cycle. It is pure given the
// configuration and is called fresh each cycle so config changes take
// effect without restarting in-memory state.
//
// A check whose URL or secret is missing is still emitted (the prober
// reports it as degraded) so misconfiguration surfaces on the dashboard
// instead of silently disappearing. The exceptions are the messaging and
// auth checks: without a base URL there is nothing meaningful to name, so
// they are omitted entirely.
func BuildSpecs(cfg config.MonitoringConfig) []CheckSpec {
	billingPartnerKey := cfg.BillingPartnerAPIKey
	if billingPartnerKey == "" {
		billingPartnerKey = cfg.BillingAPIKey
	}
	billingERPKey := cfg.BillingERPAPIKey
	if billingERPKey == "" {
		billingERPKey = cfg.BillingAPIKey
	}
	billingAppKey := cfg.BillingAppAPIKey
	if billingAppKey == "" {
		billingAppKey = cfg.BillingAPIKey
	}

	specs := []CheckSpec{
		{
			CheckKey: "erp-db",
			Service:  "ERP Database",
			Target:   "erp-db",
			Critical: true,
			Category: CategoryDatabase,
			Kind:     KindPrimaryDB,
		},
		{
			CheckKey: "platform-db",
			Service:  "Platform Database",
			Target:   "platform-db",
			Critical: true,
			Category: CategoryDatabase,
			Kind:     KindPlatformDB,
		},
		{
			CheckKey: "erp-api",
			Service:  "ERP API",
			Target:   cfg.ERPAPIHealthURL,
			Critical: true,
			Category: CategoryAPI,
			Kind:     KindHTTP,
		},
		{
			CheckKey: "erp-frontend",
			Service:  "ERP Frontend",
			Target:   cfg.ERPFrontendURL,
			Critical: true,
			Category: CategoryFrontend,
			Kind:     KindHTTP,
		},
		{
			CheckKey: "app-frontend",
			Service:  "App Frontend",
			Target:   cfg.AppFrontendURL,
			Critical: true,
			Category: CategoryFrontend,
			Kind:     KindHTTP,
		},
		{
			CheckKey: "platform-api",
			Service:  "Platform API",
			Target:   cfg.PlatformAPIHealthURL,
			Critical: true,
			Category: CategoryAPI,
			Kind:     KindHTTP,
		},
		{
			CheckKey: "partner-erp-frontend",
			Service:  "Partner ERP Frontend",
			Target:   cfg.PartnerFrontendURL,
			Critical: true,
			Category: CategoryFrontend,
			Kind:     KindHTTP,
		},
		{
			CheckKey:        "partner-erp-backend",
			Service:         "Partner ERP Backend",
			Target:          cfg.PartnerBackendURL,
			Critical:        true,
			Category:        CategoryAPI,
			Kind:            KindHTTP,
			SuccessStatuses: []int{200, 401, 403},
		},
		{
			CheckKey: "partner-erp-db",
			Service:  "Partner ERP Database",
			Target:   cfg.PartnerDBURL,
			Critical: true,
			Category: CategoryDatabase,
			Kind:     KindExternalDB,
		},
		{
			CheckKey: "openai-api",
			Service:  "OpenAI API",
			Target:   "https://api.openai.com/v1/models",
			Critical: false,
			Category: CategoryAI,
			Kind:     KindOpenAI,
			APIKey:   cfg.OpenAIAPIKey,
		},
		{
			CheckKey: "billing-partner-erp",
			Service:  "Billing API (Partner ERP)",
			Target:   cfg.BillingPartnerURL,
			Critical: false,
			Category: CategoryBilling,
			Kind:     KindBilling,
			APIKey:   billingPartnerKey,
		},
		{
			CheckKey: "billing-erp",
			Service:  "Billing API (ERP)",
			Target:   cfg.BillingERPURL,
			Critical: false,
			Category: CategoryBilling,
			Kind:     KindBilling,
			APIKey:   billingERPKey,
		},
		{
			CheckKey: "billing-app",
			Service:  "Billing API (App)",
			Target:   cfg.BillingAppURL,
			Critical: false,
			Category: CategoryBilling,
			Kind:     KindBilling,
			APIKey:   billingAppKey,
		},
	}

	if cfg.MessagingHealthURL != "" {
		specs = append(specs, CheckSpec{
			CheckKey: "messaging",
			Service:  "Messaging Gateway",
			Target:   cfg.MessagingHealthURL,
			Critical: false,
			Category: CategoryMessaging,
			Kind:     KindHTTP,
		})
	}

	if base := strings.TrimRight(cfg.AuthBaseURL, "/"); base != "" {
		specs = append(specs,
			CheckSpec{
				CheckKey: "auth-health",
				Service:  "Auth Service",
				Target:   base + "/auth/v1/health",
				Critical: true,
				Category: CategoryAuth,
				Kind:     KindHTTP,
			},
			CheckSpec{
				CheckKey: "auth-admin",
				Service:  "Auth Admin",
				Target:   base + "/auth/v1/admin/users?page=1&per_page=1",
				Critical: true,
				Category: CategoryAuth,
				Kind:     KindAuthAdmin,
				APIKey:   cfg.AuthServiceKey,
			},
		)
	}

	return specs
}
