package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vmmonitor")
	}

	v.SetEnvPrefix("VMMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vmmonitor")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/vmmonitor.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "vmmonitor")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migration_timeout", "60s")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "vmmonitor")
	v.SetDefault("mongo.collection", "metric_samples")
	v.SetDefault("mongo.connect_timeout", "10s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.cleanup_interval", "60s")
	v.SetDefault("cache.key_prefix", "vmmonitor:")
	v.SetDefault("cache.user_ttl", "5m")

	v.SetDefault("metric_store.backend", "postgres")

	v.SetDefault("cloud.mode", "live")
	v.SetDefault("cloud.timeout", "30s")
	v.SetDefault("cloud.retry_attempts", 3)
	v.SetDefault("cloud.retry_delay", "1s")
	v.SetDefault("cloud.circuit_breaker.max_failures", 5)
	v.SetDefault("cloud.circuit_breaker.timeout", "60s")
	v.SetDefault("cloud.aws.region", "us-east-1")
	v.SetDefault("cloud.simulated.base_cpu", 45.0)
	v.SetDefault("cloud.simulated.base_memory", 55.0)
	v.SetDefault("cloud.simulated.base_disk", 60.0)
	v.SetDefault("cloud.simulated.variance", 8.0)
	v.SetDefault("cloud.simulated.pattern", "daily")

	v.SetDefault("monitoring.default_thresholds.cpu", 80.0)
	v.SetDefault("monitoring.default_thresholds.memory", 85.0)
	v.SetDefault("monitoring.default_thresholds.disk", 90.0)
	v.SetDefault("monitoring.default_thresholds.cost", 30.0)
	v.SetDefault("monitoring.default_thresholds.critical", 95.0)
	v.SetDefault("monitoring.metric_window", "10m")
	v.SetDefault("monitoring.anomaly.window", "24h")
	v.SetDefault("monitoring.anomaly.min_samples", 10)
	v.SetDefault("monitoring.anomaly.z_threshold", 3.0)
	v.SetDefault("monitoring.anomaly.metrics", []string{"cpu"})

	v.SetDefault("alerting.dedup_window", "60m")
	v.SetDefault("alerting.notifiers", []string{"log"})
	v.SetDefault("alerting.notify_retries", 3)
	v.SetDefault("alerting.notify_timeout", "10s")
	v.SetDefault("alerting.notify_workers", 4)
	v.SetDefault("alerting.smtp.port", 587)

	v.SetDefault("snapshot.default_retention_days", 30)
	v.SetDefault("snapshot.location", "UTC")
	v.SetDefault("snapshot.alert_on_failure", true)

	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.job_timeout", "30m")
	v.SetDefault("scheduler.drain_timeout", "30s")
	v.SetDefault("scheduler.metric_poll", "5m")
	v.SetDefault("scheduler.snapshot_create", "60m")
	v.SetDefault("scheduler.snapshot_cleanup", "24h")
	v.SetDefault("scheduler.cost_check", "24h")
	v.SetDefault("scheduler.state_sync", "10m")
	v.SetDefault("scheduler.metric_retention", "24h")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "vmmonitor")
	v.SetDefault("api.default_limit", 50)
	v.SetDefault("api.max_limit", 500)
	v.SetDefault("api.cors.allowed_origins", []string{"*"})

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.path", "/metrics")
	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("events.buffer_size", 256)
}
