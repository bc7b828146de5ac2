package config

import "time"

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	MetricStore MetricStoreConfig `mapstructure:"metric_store"`
	Cloud       CloudConfig       `mapstructure:"cloud"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	API         APIConfig         `mapstructure:"api"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Prometheus  PrometheusConfig  `mapstructure:"prometheus"`
	Events      EventsConfig      `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend         string        `mapstructure:"backend"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	UserTTL         time.Duration `mapstructure:"user_ttl"`
}

type MetricStoreConfig struct {
	// Backend is "postgres" or "mongo".
	Backend string `mapstructure:"backend"`
}

type CloudConfig struct {
	// Mode is "live" for the provider APIs or "simulated" for an in-process fleet.
	Mode           string               `mapstructure:"mode"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	AWS            AWSConfig            `mapstructure:"aws"`
	Azure          AzureConfig          `mapstructure:"azure"`
	GCP            GCPConfig            `mapstructure:"gcp"`
	Simulated      SimulatedConfig      `mapstructure:"simulated"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AWSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
}

func (c AWSConfig) Configured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type AzureConfig struct {
	SubscriptionID string `mapstructure:"subscription_id"`
	TenantID       string `mapstructure:"tenant_id"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
}

func (c AzureConfig) Configured() bool {
	return c.SubscriptionID != "" && c.TenantID != ""
}

type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
	KeyFile   string `mapstructure:"key_file"`
}

func (c GCPConfig) Configured() bool {
	return c.ProjectID != "" && c.KeyFile != ""
}

type SimulatedConfig struct {
	BaseCPU    float64 `mapstructure:"base_cpu"`
	BaseMemory float64 `mapstructure:"base_memory"`
	BaseDisk   float64 `mapstructure:"base_disk"`
	Variance   float64 `mapstructure:"variance"`
	Pattern    string  `mapstructure:"pattern"`
}

type MonitoringConfig struct {
	DefaultThresholds ThresholdConfig `mapstructure:"default_thresholds"`
	MetricWindow      time.Duration   `mapstructure:"metric_window"`
	Anomaly           AnomalyConfig   `mapstructure:"anomaly"`
}

type ThresholdConfig struct {
	CPU      float64 `mapstructure:"cpu"`
	Memory   float64 `mapstructure:"memory"`
	Disk     float64 `mapstructure:"disk"`
	Cost     float64 `mapstructure:"cost"`
	Critical float64 `mapstructure:"critical"`
}

type AnomalyConfig struct {
	Window     time.Duration `mapstructure:"window"`
	MinSamples int           `mapstructure:"min_samples"`
	ZThreshold float64       `mapstructure:"z_threshold"`
	Metrics    []string      `mapstructure:"metrics"`
}

type AlertingConfig struct {
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
	Notifiers     []string      `mapstructure:"notifiers"`
	NotifyRetries int           `mapstructure:"notify_retries"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`
	NotifyWorkers int           `mapstructure:"notify_workers"`
	SMTP          SMTPConfig    `mapstructure:"smtp"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type SnapshotConfig struct {
	DefaultRetentionDays int    `mapstructure:"default_retention_days"`
	Location             string `mapstructure:"location"`
	AlertOnFailure       bool   `mapstructure:"alert_on_failure"`
}

type SchedulerConfig struct {
	RunOnStart      bool          `mapstructure:"run_on_start"`
	Workers         int           `mapstructure:"workers"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout"`
	MetricPoll      time.Duration `mapstructure:"metric_poll"`
	SnapshotCreate  time.Duration `mapstructure:"snapshot_create"`
	SnapshotCleanup time.Duration `mapstructure:"snapshot_cleanup"`
	CostCheck       time.Duration `mapstructure:"cost_check"`
	StateSync       time.Duration `mapstructure:"state_sync"`
	MetricRetention time.Duration `mapstructure:"metric_retention"`
}

type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTDuration  time.Duration `mapstructure:"jwt_duration"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Port serves the metrics endpoint on its own listener when the API is disabled.
	Port int `mapstructure:"port"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
