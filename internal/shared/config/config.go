package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Encryption EncryptionConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	BankData   BankDataConfig
	Payments   PaymentsConfig
	Directory  DirectoryConfig
	RoundUp    RoundUpConfig
	Firebase   FirebaseConfig
	Messages   MessagesConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type EncryptionConfig struct {
	Key string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type BankDataConfig struct {
	BaseURL       string
	ClientID      string
	Secret        string
	WebhookSecret string
}

type PaymentsConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Currency      string
}

type DirectoryConfig struct {
	BaseURL string
	APIKey  string
}

type RoundUpConfig struct {
	MinimumThreshold float64
	OrphanTimeout    time.Duration
}

type FirebaseConfig struct {
	CredentialsFile string
}

type MessagesConfig struct {
	Path string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "03:00"), ",")
	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	minThreshold, err := strconv.ParseFloat(getEnv("ROUNDUP_MINIMUM_THRESHOLD", "5.00"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ROUNDUP_MINIMUM_THRESHOLD: %w", err)
	}
	orphanTimeout, err := time.ParseDuration(getEnv("ROUNDUP_ORPHAN_TIMEOUT", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROUNDUP_ORPHAN_TIMEOUT: %w", err)
	}

	// Parse allowed hosts (comma-separated list)
	allowedHostsStr := getEnv("ALLOWED_HOSTS", "")
	var allowedHosts []string
	if allowedHostsStr != "" {
		for _, host := range strings.Split(allowedHostsStr, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				allowedHosts = append(allowedHosts, host)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: allowedHosts,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "roundup"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "roundup"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  schedulerRunOnStartup,
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		BankData: BankDataConfig{
			BaseURL:       getEnv("BANKDATA_BASE_URL", "https://sandbox.bankdata.example.com"),
			ClientID:      getEnv("BANKDATA_CLIENT_ID", ""),
			Secret:        getEnv("BANKDATA_SECRET", ""),
			WebhookSecret: getEnv("BANKDATA_WEBHOOK_SECRET", ""),
		},
		Payments: PaymentsConfig{
			BaseURL:       getEnv("PAYMENTS_BASE_URL", "https://api.payments.example.com"),
			APIKey:        getEnv("PAYMENTS_API_KEY", ""),
			WebhookSecret: getEnv("PAYMENTS_WEBHOOK_SECRET", ""),
			Currency:      getEnv("PAYMENTS_CURRENCY", "usd"),
		},
		Directory: DirectoryConfig{
			BaseURL: getEnv("DIRECTORY_BASE_URL", "https://api.causes.example.com"),
			APIKey:  getEnv("DIRECTORY_API_KEY", ""),
		},
		RoundUp: RoundUpConfig{
			MinimumThreshold: minThreshold,
			OrphanTimeout:    orphanTimeout,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Messages: MessagesConfig{
			Path: getEnv("MESSAGES_PATH", "configs/messages.json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "roundup-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("OTEL_METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.RoundUp.MinimumThreshold <= 0 {
		return nil, fmt.Errorf("ROUNDUP_MINIMUM_THRESHOLD must be positive")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
