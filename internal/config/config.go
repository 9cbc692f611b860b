package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port      string
	Mode      string
	JWTSecret string
}

type DatabaseConfig struct {
	// URL is the primary ERP database (shared pool, always required).
	URL string
	// PlatformURL is the platform database holding the monitoring tables.
	// Optional: when empty the engine runs live, unpersisted cycles.
	PlatformURL    string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL         string
	SnapshotTTL time.Duration
}

type MonitoringConfig struct {
	Enabled                  bool
	Interval                 time.Duration
	CheckTimeout             time.Duration
	StaleAfter               time.Duration
	FailureThresholdCritical int
	FailureThresholdDefault  int
	RecoveryThreshold        int
	SlackWebhookURL          string

	// First-party surfaces.
	ERPAPIHealthURL      string
	ERPFrontendURL       string
	AppFrontendURL       string
	PlatformAPIHealthURL string

	// Partner deployment (separately hosted ERP instance).
	PartnerFrontendURL string
	PartnerBackendURL  string
	PartnerDBURL       string

	// Third-party dependencies, each independently optional.
	MessagingHealthURL string
	AuthBaseURL        string
	AuthServiceKey     string
	OpenAIAPIKey       string

	// Billing provider, one organization per surface. Per-org keys fall
	// back to the shared key when unset.
	BillingAPIKey        string
	BillingPartnerURL    string
	BillingPartnerAPIKey string
	BillingERPURL        string
	BillingERPAPIKey     string
	BillingAppURL        string
	BillingAppAPIKey     string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("OPSWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults. Every key is registered, even the empty ones, so the
	// OPSWATCH_* environment variables can populate it without a config
	// file.
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.jwtsecret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.platformurl", "")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.snapshotttl", "5s")
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.interval", "60s")
	viper.SetDefault("monitoring.checktimeout", "10s")
	viper.SetDefault("monitoring.staleafter", "300s")
	viper.SetDefault("monitoring.failurethresholdcritical", 2)
	viper.SetDefault("monitoring.failurethresholddefault", 3)
	viper.SetDefault("monitoring.recoverythreshold", 2)
	viper.SetDefault("monitoring.slackwebhookurl", "")
	viper.SetDefault("monitoring.erpapihealthurl", "")
	viper.SetDefault("monitoring.erpfrontendurl", "")
	viper.SetDefault("monitoring.appfrontendurl", "")
	viper.SetDefault("monitoring.platformapihealthurl", "")
	viper.SetDefault("monitoring.partnerfrontendurl", "")
	viper.SetDefault("monitoring.partnerbackendurl", "")
	viper.SetDefault("monitoring.partnerdburl", "")
	viper.SetDefault("monitoring.messaginghealthurl", "")
	viper.SetDefault("monitoring.authbaseurl", "")
	viper.SetDefault("monitoring.authservicekey", "")
	viper.SetDefault("monitoring.openaiapikey", "")
	viper.SetDefault("monitoring.billingapikey", "")
	viper.SetDefault("monitoring.billingpartnerurl", "")
	viper.SetDefault("monitoring.billingpartnerapikey", "")
	viper.SetDefault("monitoring.billingerpurl", "")
	viper.SetDefault("monitoring.billingerpapikey", "")
	viper.SetDefault("monitoring.billingappurl", "")
	viper.SetDefault("monitoring.billingappapikey", "")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("PLATFORM_DATABASE_URL"); url != "" {
		cfg.Database.PlatformURL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Monitoring.OpenAIAPIKey = key
	}
	if key := os.Getenv("BILLING_API_KEY"); key != "" {
		cfg.Monitoring.BillingAPIKey = key
	}
	if key := os.Getenv("AUTH_SERVICE_KEY"); key != "" {
		cfg.Monitoring.AuthServiceKey = key
	}
	if url := os.Getenv("MONITORING_SLACK_WEBHOOK_URL"); url != "" {
		cfg.Monitoring.SlackWebhookURL = url
	}

	cfg.Monitoring.Normalize()

	return &cfg, nil
}

// Normalize floors misconfigured values (zero, negative) so they never
// reach the engine.
func (m *MonitoringConfig) Normalize() {
	if m.Interval < 10*time.Second {
		m.Interval = 10 * time.Second
	}
	if m.CheckTimeout < time.Second {
		m.CheckTimeout = time.Second
	}
	if m.StaleAfter < 30*time.Second {
		m.StaleAfter = 30 * time.Second
	}
	if m.FailureThresholdCritical < 1 {
		m.FailureThresholdCritical = 1
	}
	if m.FailureThresholdDefault < 1 {
		m.FailureThresholdDefault = 1
	}
	if m.RecoveryThreshold < 1 {
		m.RecoveryThreshold = 1
	}
}
