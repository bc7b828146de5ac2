package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

func (c *Config) Validate() error {
	var errs []error

	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}
	validOutputs := map[string]bool{"stdout": true, "file": true, "both": true}
	if !validOutputs[c.Log.Output] {
		errs = append(errs, fmt.Errorf("log.output must be one of: stdout, file, both"))
	}
	if c.Log.Output != "stdout" && c.Log.FilePath == "" {
		errs = append(errs, errors.New("log.file_path is required for file output"))
	}

	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, errors.New("database.port must be between 1 and 65535"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Database.MaxConnections <= 0 {
		errs = append(errs, errors.New("database.max_connections must be positive"))
	}

	switch c.MetricStore.Backend {
	case "postgres":
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database are required for the mongo metric store"))
		}
	default:
		errs = append(errs, fmt.Errorf("metric_store.backend must be one of: postgres, mongo"))
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be one of: memory, redis"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	if c.Cloud.Mode != "live" && c.Cloud.Mode != "simulated" {
		errs = append(errs, fmt.Errorf("cloud.mode must be one of: live, simulated"))
	}
	if c.Cloud.Timeout <= 0 {
		errs = append(errs, errors.New("cloud.timeout must be positive"))
	}

	t := c.Monitoring.DefaultThresholds
	for name, v := range map[string]float64{"cpu": t.CPU, "memory": t.Memory, "disk": t.Disk} {
		if v <= 0 || v > 100 {
			errs = append(errs, fmt.Errorf("monitoring.default_thresholds.%s must be between 0 and 100", name))
		}
	}
	if c.Monitoring.Anomaly.MinSamples < 2 {
		errs = append(errs, errors.New("monitoring.anomaly.min_samples must be at least 2"))
	}
	if c.Monitoring.Anomaly.ZThreshold <= 0 {
		errs = append(errs, errors.New("monitoring.anomaly.z_threshold must be positive"))
	}
	if c.Monitoring.Anomaly.Window <= 0 {
		errs = append(errs, errors.New("monitoring.anomaly.window must be positive"))
	}

	if c.Alerting.DedupWindow <= 0 {
		errs = append(errs, errors.New("alerting.dedup_window must be positive"))
	}
	for _, n := range c.Alerting.Notifiers {
		switch n {
		case "log":
		case "email":
			if c.Alerting.SMTP.Host == "" || c.Alerting.SMTP.From == "" {
				errs = append(errs, errors.New("alerting.smtp.host and alerting.smtp.from are required for the email notifier"))
			}
		case "webhook":
			if c.Alerting.Webhook.URL == "" {
				errs = append(errs, errors.New("alerting.webhook.url is required for the webhook notifier"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notifier %q", n))
		}
	}

	if c.Snapshot.DefaultRetentionDays <= 0 {
		errs = append(errs, errors.New("snapshot.default_retention_days must be positive"))
	}
	if _, err := time.LoadLocation(c.Snapshot.Location); err != nil {
		errs = append(errs, fmt.Errorf("snapshot.location is invalid: %v", err))
	}

	s := c.Scheduler
	for name, d := range map[string]time.Duration{
		"metric_poll":      s.MetricPoll,
		"snapshot_create":  s.SnapshotCreate,
		"snapshot_cleanup": s.SnapshotCleanup,
		"cost_check":       s.CostCheck,
		"state_sync":       s.StateSync,
		"metric_retention": s.MetricRetention,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("scheduler.%s must be positive", name))
		}
	}
	if s.Workers <= 0 {
		errs = append(errs, errors.New("scheduler.workers must be positive"))
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			errs = append(errs, errors.New("api.port must be between 1 and 65535"))
		}
		if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
			errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}

// ValidateSchedule reports whether expr is a standard five-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}
