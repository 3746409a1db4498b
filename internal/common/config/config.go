// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	HTTP         HTTPConfig              `mapstructure:"http"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Storage      StorageConfig           `mapstructure:"storage"`
	Messaging    MessagingConfig         `mapstructure:"messaging"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Auth         AuthConfig              `mapstructure:"auth"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Finance      FinanceConfig           `mapstructure:"finance"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int `mapstructure:"write_timeout"` // milliseconds
}

// Addr returns the listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Driver        string              `mapstructure:"driver"` // postgres or memory
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses       []string `mapstructure:"addresses"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	SubmissionIndex string   `mapstructure:"submission_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds the object store used for generated documents.
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Secure        bool   `mapstructure:"secure"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type MessagingConfig struct {
	RabbitMQ struct {
		URL               string `mapstructure:"url"`
		NotificationQueue string `mapstructure:"notification_queue"`
		ConsumerEnabled   bool   `mapstructure:"consumer_enabled"`
	} `mapstructure:"rabbitmq"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// AuthConfig holds the token introspection settings.
type AuthConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Keycloak KeycloakConfig `mapstructure:"keycloak"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AdminRole    string `mapstructure:"admin_role"`
	AgencyRole   string `mapstructure:"agency_role"`
}

// IntegrationConfig holds settings for external collaborators.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled bool `mapstructure:"enabled"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	Renderer ServiceEndpoint `mapstructure:"renderer"`
	ESign    struct {
		ServiceEndpoint `mapstructure:",squash"`
		WebhookSecret   string `mapstructure:"webhook_secret"`
	} `mapstructure:"esign"`
	Payments ServiceEndpoint `mapstructure:"payments"`
}

// ServiceEndpoint is an HTTP collaborator.
type ServiceEndpoint struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type FinanceConfig struct {
	CacheTTL  int `mapstructure:"cache_ttl"`  // seconds
	DedupeTTL int `mapstructure:"dedupe_ttl"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
