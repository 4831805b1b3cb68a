package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration. Engine behaviour that operators tune
// (thresholds, budgets, anomaly sensitivity) lives in domain/settings instead.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	Redis        RedisConfig
	Logging      LoggingConfig
	Notification NotificationConfig
	Schedule     ScheduleConfig
	Engine       EngineConfig
	Collectors   CollectorConfig
}

// ServerConfig contains operator API configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string // sqlite or postgres
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// AuthConfig contains operator token configuration
type AuthConfig struct {
	JWTSecret string
	Required  bool
}

// RedisConfig contains Redis configuration for the dedup lock
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	OutputPath string
}

// NotificationConfig configures where alerts and reports are delivered
type NotificationConfig struct {
	SlackWebhookURL string
	AWSRegion       string
	// SNS topic ARN per logical channel
	AlertsTopicARN    string
	AnomaliesTopicARN string
	BudgetTopicARN    string
	ReportsTopicARN   string
	ReportBucket      string
	ReportPrefix      string
}

// TopicFor returns the SNS topic ARN configured for a channel, or "".
func (n NotificationConfig) TopicFor(channel string) string {
	switch channel {
	case "alerts":
		return n.AlertsTopicARN
	case "anomalies":
		return n.AnomaliesTopicARN
	case "budget":
		return n.BudgetTopicARN
	case "reports":
		return n.ReportsTopicARN
	}
	return ""
}

// ScheduleConfig holds cron specs for the scheduled passes
type ScheduleConfig struct {
	Alerting       string
	Collection     string
	Analysis       string
	DailySummary   string
	WeeklySummary  string
	MonthlySummary string
}

// EngineConfig holds run tuning parameters
type EngineConfig struct {
	SettingsFile     string
	DedupWindow      time.Duration
	AlertTTL         time.Duration
	PageSize         int
	QueryTimeout     time.Duration
	ReadRetries      int
	RetryBaseDelay   time.Duration
	LookbackDays     int
	AnomalyWindow    int
	ForecastDays     int
	EvaluatorTimeout time.Duration
}

// CollectorConfig configures the billing collectors
type CollectorConfig struct {
	AWSEnabled          bool
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	GCPEnabled          bool
	GCPProjectID        string
	GCPBillingTable     string
	GCPCredentialsFile  string
	AzureEnabled        bool
	AzureSubscriptionID string
	AzureTenantID       string
	AzureClientID       string
	AzureClientSecret   string
	LookbackDays        int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "costwatch"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./costwatch.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Required:  getEnvAsBool("AUTH_REQUIRED", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Notification: NotificationConfig{
			SlackWebhookURL:   getEnv("SLACK_WEBHOOK_URL", ""),
			AWSRegion:         getEnv("NOTIFY_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
			AlertsTopicARN:    getEnv("SNS_ALERTS_TOPIC_ARN", ""),
			AnomaliesTopicARN: getEnv("SNS_ANOMALIES_TOPIC_ARN", ""),
			BudgetTopicARN:    getEnv("SNS_BUDGET_TOPIC_ARN", ""),
			ReportsTopicARN:   getEnv("SNS_REPORTS_TOPIC_ARN", ""),
			ReportBucket:      getEnv("REPORT_BUCKET", ""),
			ReportPrefix:      getEnv("REPORT_PREFIX", "reports/"),
		},
		Schedule: ScheduleConfig{
			Alerting:       getEnv("SCHEDULE_ALERTING", "*/15 * * * *"),
			Collection:     getEnv("SCHEDULE_COLLECTION", "0 * * * *"),
			Analysis:       getEnv("SCHEDULE_ANALYSIS", "0 */6 * * *"),
			DailySummary:   getEnv("SCHEDULE_DAILY_SUMMARY", "0 8 * * *"),
			WeeklySummary:  getEnv("SCHEDULE_WEEKLY_SUMMARY", "0 8 * * 1"),
			MonthlySummary: getEnv("SCHEDULE_MONTHLY_SUMMARY", "0 8 1 * *"),
		},
		Engine: EngineConfig{
			SettingsFile:     getEnv("COSTWATCH_SETTINGS_FILE", ""),
			DedupWindow:      getEnvAsDuration("ALERT_DEDUP_WINDOW", time.Hour),
			AlertTTL:         getEnvAsDuration("ALERT_TTL", 30*24*time.Hour),
			PageSize:         getEnvAsInt("QUERY_PAGE_SIZE", 500),
			QueryTimeout:     getEnvAsDuration("QUERY_TIMEOUT", 30*time.Second),
			ReadRetries:      getEnvAsInt("QUERY_RETRIES", 3),
			RetryBaseDelay:   getEnvAsDuration("QUERY_RETRY_DELAY", 200*time.Millisecond),
			LookbackDays:     getEnvAsInt("ANALYSIS_LOOKBACK_DAYS", 30),
			AnomalyWindow:    getEnvAsInt("ANOMALY_WINDOW_DAYS", 14),
			ForecastDays:     getEnvAsInt("FORECAST_DAYS", 7),
			EvaluatorTimeout: getEnvAsDuration("EVALUATOR_TIMEOUT", time.Minute),
		},
		Collectors: CollectorConfig{
			AWSEnabled:          getEnvAsBool("COLLECT_AWS", false),
			AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
			AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			GCPEnabled:          getEnvAsBool("COLLECT_GCP", false),
			GCPProjectID:        getEnv("GCP_PROJECT_ID", ""),
			GCPBillingTable:     getEnv("GCP_BILLING_TABLE", ""),
			GCPCredentialsFile:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			AzureEnabled:        getEnvAsBool("COLLECT_AZURE", false),
			AzureSubscriptionID: getEnv("AZURE_SUBSCRIPTION_ID", ""),
			AzureTenantID:       getEnv("AZURE_TENANT_ID", ""),
			AzureClientID:       getEnv("AZURE_CLIENT_ID", ""),
			AzureClientSecret:   getEnv("AZURE_CLIENT_SECRET", ""),
			LookbackDays:        getEnvAsInt("COLLECT_LOOKBACK_DAYS", 2),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set when AUTH_REQUIRED is true")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Engine.DedupWindow <= 0 {
		return fmt.Errorf("ALERT_DEDUP_WINDOW must be positive")
	}

	if c.Engine.PageSize < 1 {
		return fmt.Errorf("QUERY_PAGE_SIZE must be at least 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
