package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{Name: "test-app", Mode: "development"},
		Log: LogConfig{Level: "info", Output: "stdout"},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Name:           "testdb",
			User:           "user",
			Password:       "pass",
			MaxConnections: 10,
		},
		Cache:       CacheConfig{Backend: "memory", TTL: 5 * time.Minute},
		MetricStore: MetricStoreConfig{Backend: "postgres"},
		Cloud:       CloudConfig{Mode: "simulated", Timeout: 10 * time.Second},
		Monitoring: MonitoringConfig{
			DefaultThresholds: ThresholdConfig{CPU: 80, Memory: 85, Disk: 90, Cost: 30},
			Anomaly:           AnomalyConfig{Window: 24 * time.Hour, MinSamples: 10, ZThreshold: 3},
		},
		Alerting: AlertingConfig{DedupWindow: time.Hour, Notifiers: []string{"log"}},
		Snapshot: SnapshotConfig{DefaultRetentionDays: 30, Location: "UTC"},
		Scheduler: SchedulerConfig{
			Workers:         4,
			MetricPoll:      5 * time.Minute,
			SnapshotCreate:  time.Hour,
			SnapshotCleanup: 24 * time.Hour,
			CostCheck:       24 * time.Hour,
			StateSync:       10 * time.Minute,
			MetricRetention: 24 * time.Hour,
		},
		API: APIConfig{Enabled: true, Port: 8080},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectErr   bool
		errContains string
	}{
		{
			name:       "valid config",
			modifyFunc: func(c *Config) {},
		},
		{
			name:        "invalid mode",
			modifyFunc:  func(c *Config) { c.App.Mode = "staging" },
			expectErr:   true,
			errContains: "app.mode",
		},
		{
			name:        "file output without path",
			modifyFunc:  func(c *Config) { c.Log.Output = "file"; c.Log.FilePath = "" },
			expectErr:   true,
			errContains: "log.file_path",
		},
		{
			name:        "unknown metric store",
			modifyFunc:  func(c *Config) { c.MetricStore.Backend = "influx" },
			expectErr:   true,
			errContains: "metric_store.backend",
		},
		{
			name:        "mongo store without uri",
			modifyFunc:  func(c *Config) { c.MetricStore.Backend = "mongo" },
			expectErr:   true,
			errContains: "mongo.uri",
		},
		{
			name:        "redis cache without addr",
			modifyFunc:  func(c *Config) { c.Cache.Backend = "redis" },
			expectErr:   true,
			errContains: "redis.addr",
		},
		{
			name:        "cpu threshold out of range",
			modifyFunc:  func(c *Config) { c.Monitoring.DefaultThresholds.CPU = 120 },
			expectErr:   true,
			errContains: "default_thresholds.cpu",
		},
		{
			name:        "email notifier without smtp",
			modifyFunc:  func(c *Config) { c.Alerting.Notifiers = []string{"email"} },
			expectErr:   true,
			errContains: "alerting.smtp.host",
		},
		{
			name:        "zero job interval",
			modifyFunc:  func(c *Config) { c.Scheduler.StateSync = 0 },
			expectErr:   true,
			errContains: "scheduler.state_sync",
		},
		{
			name:        "bad snapshot location",
			modifyFunc:  func(c *Config) { c.Snapshot.Location = "Mars/Olympus" },
			expectErr:   true,
			errContains: "snapshot.location",
		},
		{
			name: "default jwt secret in production",
			modifyFunc: func(c *Config) {
				c.App.Mode = "production"
				c.API.JWTSecret = "change-me-in-production"
			},
			expectErr:   true,
			errContains: "jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)

			err := cfg.Validate()

			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("app:\n  mode: test\nscheduler:\n  metric_poll: 1m\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Mode)
	assert.Equal(t, time.Minute, cfg.Scheduler.MetricPoll)
	assert.Equal(t, time.Hour, cfg.Scheduler.SnapshotCreate)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.StateSync)
	assert.Equal(t, time.Hour, cfg.Alerting.DedupWindow)
	assert.Equal(t, 30, cfg.Snapshot.DefaultRetentionDays)
	assert.Equal(t, 80.0, cfg.Monitoring.DefaultThresholds.CPU)
	assert.Equal(t, []string{"cpu"}, cfg.Monitoring.Anomaly.Metrics)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VMMONITOR_API_PORT", "9191")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  port: 8081\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.API.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestProviderCredentials_Configured(t *testing.T) {
	assert.False(t, AWSConfig{AccessKeyID: "id"}.Configured())
	assert.True(t, AWSConfig{AccessKeyID: "id", SecretAccessKey: "secret"}.Configured())
	assert.False(t, AzureConfig{SubscriptionID: "sub"}.Configured())
	assert.True(t, AzureConfig{SubscriptionID: "sub", TenantID: "tenant"}.Configured())
	assert.False(t, GCPConfig{ProjectID: "p"}.Configured())
	assert.True(t, GCPConfig{ProjectID: "p", KeyFile: "/k.json"}.Configured())
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 3 * * *"))
	assert.Error(t, ValidateSchedule("every day"))
}
