package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/api"
	"github.com/OldStager01/cloud-vm-monitor/api/handlers"
	"github.com/OldStager01/cloud-vm-monitor/internal/alerting"
	"github.com/OldStager01/cloud-vm-monitor/internal/auth"
	"github.com/OldStager01/cloud-vm-monitor/internal/cache"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud/aws"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud/azure"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud/gcp"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud/simulated"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/orchestrator"
	"github.com/OldStager01/cloud-vm-monitor/internal/resilience"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/internal/store/mongostore"
	"github.com/OldStager01/cloud-vm-monitor/pkg/config"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database/queries"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// runtime holds the long-lived connections shared by serve and run.
type runtime struct {
	cfg      *config.Config
	db       *database.DB
	mongo    *mongostore.MetricStore
	cache    cache.Cache
	users    *queries.UserRepository
	stores   orchestrator.Stores
	registry *cloud.Registry
	checks   map[string]handlers.Check
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(cfg.Database.ToDBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")
	return db, nil
}

// buildRuntime connects every backend. With migrate set, pending migrations
// are applied before anything reads the schema.
func buildRuntime(ctx context.Context, cfg *config.Config, migrate bool) (*runtime, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		err = runMigrations(ctx, db, cfg.Database.MigrationTimeout)
	}
	if err == nil {
		err = requireSchema(ctx, db)
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		db:     db,
		checks: map[string]handlers.Check{"database": db.HealthCheck},
	}
	if err := rt.buildCache(); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.buildStores(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	registry, err := buildRegistry(ctx, cfg, rt.stores.VMs)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.registry = registry
	return rt, nil
}

func (rt *runtime) buildCache() error {
	switch rt.cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      rt.cfg.Redis.Addr,
			Password:  rt.cfg.Redis.Password,
			DB:        rt.cfg.Redis.DB,
			KeyPrefix: rt.cfg.Cache.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.cache = c
		rt.checks["redis"] = c.Ping
		logger.Infof("Using redis cache at %s", rt.cfg.Redis.Addr)
	default:
		rt.cache = cache.NewMemoryCache(rt.cfg.Cache.CleanupInterval)
	}
	return nil
}

func (rt *runtime) buildStores(ctx context.Context) error {
	sqlDB := rt.db.DB
	rt.users = queries.NewUserRepository(sqlDB)

	rt.stores = orchestrator.Stores{
		VMs:       queries.NewVMRepository(sqlDB),
		Samples:   queries.NewMetricsRepository(sqlDB),
		Alerts:    queries.NewAlertRepository(sqlDB),
		Snapshots: queries.NewSnapshotRepository(sqlDB),
		Users:     cache.NewUserStore(rt.users, rt.cache, rt.cfg.Cache.UserTTL),
		Costs:     queries.NewCostRepository(sqlDB),
		JobRuns:   queries.NewJobRunRepository(sqlDB),
	}

	if rt.cfg.MetricStore.Backend != "mongo" {
		return nil
	}
	ms, err := mongostore.Connect(ctx, mongostore.Config{
		URI:            rt.cfg.Mongo.URI,
		Database:       rt.cfg.Mongo.Database,
		Collection:     rt.cfg.Mongo.Collection,
		ConnectTimeout: rt.cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	rt.mongo = ms
	if err := ms.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create mongo indexes: %w", err)
	}
	rt.stores.Samples = ms
	rt.stores.SamplesExpire = true
	rt.checks["mongo"] = ms.HealthCheck
	logger.Info("Using mongo metric store")
	return nil
}

func (rt *runtime) orchestrator() (*orchestrator.Orchestrator, error) {
	a := rt.cfg.Alerting
	notifiers, err := alerting.BuildNotifiers(a.Notifiers,
		alerting.SMTPConfig{
			Host:     a.SMTP.Host,
			Port:     a.SMTP.Port,
			Username: a.SMTP.Username,
			Password: a.SMTP.Password,
			From:     a.SMTP.From,
		},
		alerting.WebhookConfig{
			URL:     a.Webhook.URL,
			Headers: a.Webhook.Headers,
			Timeout: a.NotifyTimeout,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid notifier config: %w", err)
	}
	return orchestrator.New(rt.cfg, rt.registry, rt.stores, notifiers)
}

func (rt *runtime) authService() *auth.Service {
	return auth.NewService(rt.cfg.API.JWTSecret, rt.cfg.API.JWTDuration, rt.cfg.API.JWTIssuer)
}

func (rt *runtime) dependencies(orch *orchestrator.Orchestrator) api.Dependencies {
	return api.Dependencies{
		Auth:        rt.authService(),
		Alerts:      rt.stores.Alerts,
		AlertOps:    orch.Alerts(),
		Snapshots:   orch.Snapshots(),
		VMs:         rt.stores.VMs,
		Samples:     rt.stores.Samples,
		Power:       orch.Power(),
		Credentials: rt.users,
		Jobs:        orch,
		Cache:       rt.cache,
		Checks:      rt.checks,
		Events:      orch.SubscribeAllEvents(),
	}
}

func (rt *runtime) Close() {
	if rt.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.mongo.Close(ctx); err != nil {
			logger.Warnf("Failed to close mongo client: %v", err)
		}
		cancel()
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			logger.Warnf("Failed to close cache: %v", err)
		}
	}
	if err := rt.db.Close(); err != nil {
		logger.Warnf("Failed to close database: %v", err)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config, vms store.VMStore) (*cloud.Registry, error) {
	var (
		adapters []cloud.Adapter
		err      error
	)
	if cfg.Cloud.Mode == "simulated" {
		adapters, err = simulatedAdapters(ctx, cfg.Cloud.Simulated, vms)
	} else {
		adapters, err = liveAdapters(ctx, cfg.Cloud)
	}
	if err != nil {
		return nil, err
	}

	rc := cloud.ResilientConfig{
		MaxFailures:   cfg.Cloud.CircuitBreaker.MaxFailures,
		Timeout:       cfg.Cloud.CircuitBreaker.Timeout,
		RetryAttempts: cfg.Cloud.RetryAttempts,
		RetryDelay:    cfg.Cloud.RetryDelay,
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.Get().SetCircuitBreakerState(name, int(to))
		},
	}

	registry := cloud.NewRegistry()
	for _, a := range adapters {
		registry.Register(cloud.NewResilientAdapter(a, rc))
	}
	if len(registry.Providers()) == 0 {
		logger.Warn("No cloud provider configured; VM jobs will fail per VM")
	}
	return registry, nil
}

func liveAdapters(ctx context.Context, c config.CloudConfig) ([]cloud.Adapter, error) {
	var adapters []cloud.Adapter
	keep := func(provider models.Provider, a cloud.Adapter, err error) error {
		switch {
		case err == nil:
			adapters = append(adapters, a)
			logger.WithProvider(string(provider)).Info("Cloud provider configured")
		case errors.Is(err, cloud.ErrNotConfigured):
			logger.WithProvider(string(provider)).Info("Cloud provider not configured, skipping")
		default:
			return fmt.Errorf("failed to create %s adapter: %w", provider, err)
		}
		return nil
	}

	awsAdapter, err := aws.New(aws.Config{
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		DefaultRegion:   c.AWS.Region,
		Timeout:         c.Timeout,
	})
	if err := keep(models.ProviderAWS, awsAdapter, err); err != nil {
		return nil, err
	}

	azureAdapter, err := azure.New(azure.Config{
		SubscriptionID: c.Azure.SubscriptionID,
		TenantID:       c.Azure.TenantID,
		ClientID:       c.Azure.ClientID,
		ClientSecret:   c.Azure.ClientSecret,
		Timeout:        c.Timeout,
	})
	if err := keep(models.ProviderAzure, azureAdapter, err); err != nil {
		return nil, err
	}

	gcpAdapter, err := gcp.New(ctx, gcp.Config{
		ProjectID: c.GCP.ProjectID,
		KeyFile:   c.GCP.KeyFile,
		Timeout:   c.Timeout,
	})
	if err := keep(models.ProviderGCP, gcpAdapter, err); err != nil {
		return nil, err
	}

	return adapters, nil
}

// simulatedAdapters builds one in-process fleet per provider, seeded with the
// active VMs already registered for it.
func simulatedAdapters(ctx context.Context, sc config.SimulatedConfig, vms store.VMStore) ([]cloud.Adapter, error) {
	active, err := vms.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vms for simulated fleet: %w", err)
	}

	fleets := make(map[models.Provider]*simulated.Fleet)
	var adapters []cloud.Adapter
	for _, p := range models.AllProviders() {
		fleet := simulated.NewFleet(simulated.Config{
			Provider:   p,
			BaseCPU:    sc.BaseCPU,
			BaseMemory: sc.BaseMemory,
			BaseDisk:   sc.BaseDisk,
			Variance:   sc.Variance,
			Pattern:    sc.Pattern,
		})
		fleets[p] = fleet
		adapters = append(adapters, fleet)
	}
	for _, vm := range active {
		if fleet, ok := fleets[vm.Provider]; ok {
			fleet.AddVM(vm)
		}
	}
	logger.Infof("Simulated fleets seeded with %d VMs", len(active))
	return adapters, nil
}
