package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	billingapp "github.com/marketsync/backend/internal/application/billing"
	catalogapp "github.com/marketsync/backend/internal/application/catalog"
	inventoryapp "github.com/marketsync/backend/internal/application/inventory"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
	"github.com/marketsync/backend/internal/domain/sku"
	"github.com/marketsync/backend/internal/domain/tax"
	"github.com/marketsync/backend/internal/infrastructure/cache"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/erp"
	"github.com/marketsync/backend/internal/infrastructure/intake"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/marketplace"
	"github.com/marketsync/backend/internal/infrastructure/notification"
	"github.com/marketsync/backend/internal/infrastructure/persistence"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting MarketSync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("channel", cfg.Marketplace.ChannelID),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected and migrated")

	// Alert window store: Redis when reachable, in-memory otherwise.
	// A lost window only means duplicate alerts, never lost work.
	var alertWindow shared.AlertWindowStore
	redisStore, err := cache.NewRedisAlertWindowStore(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, alert windows held in memory", zap.Error(err))
		alertWindow = cache.NewInMemoryAlertWindowStore()
	} else {
		alertWindow = redisStore
	}
	defer func() {
		if err := alertWindow.Close(); err != nil {
			log.Error("Error closing alert window store", zap.Error(err))
		}
	}()

	// Initialize external clients
	erpClient, err := erp.NewOdooClient(&erp.Config{
		URL:      cfg.Erp.URL,
		Database: cfg.Erp.Database,
		User:     cfg.Erp.User,
		Password: cfg.Erp.Password,
		Timeout:  cfg.Erp.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to initialize ERP client", zap.Error(err))
	}

	channelClient, err := marketplace.NewAmazonAdapter(&marketplace.Config{
		URL:     cfg.Marketplace.URL,
		Token:   cfg.Marketplace.Token,
		Timeout: cfg.Marketplace.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to initialize marketplace client", zap.Error(err))
	}

	// Initialize repositories
	configStore := persistence.NewGormConfigStore(db.DB)
	batchRepo := persistence.NewGormSyncBatchRepository(db.DB)
	publishedRepo := persistence.NewGormPublishedStateRepository(db.DB)
	orderRefRepo := persistence.NewGormOrderRefRepository(db.DB)

	// Notification sink: webhook when configured, otherwise the log
	var sink integration.NotificationSink
	if cfg.Notification.WebhookURL != "" {
		sink = notification.NewWebhookSink(notification.WebhookConfig{
			URL:     cfg.Notification.WebhookURL,
			Token:   cfg.Notification.WebhookToken,
			Timeout: cfg.Notification.WebhookTimeout,
		}, log)
		log.Info("Alerts delivered via webhook", zap.String("url", cfg.Notification.WebhookURL))
	} else {
		sink = notification.NewLogSink(log)
	}

	// Catalog registry service
	catalogService := catalogapp.NewRegistryService(
		configStore,
		alertWindow,
		sink,
		shared.AlertWindowConfig{Window: cfg.Catalog.AlertWindow, Enabled: true},
		registryBase(&cfg.Catalog),
		log,
	)
	if err := catalogService.Reload(context.Background()); err != nil {
		log.Fatal("Failed to load SKU resolution rules", zap.Error(err))
	}
	log.Info("Catalog registry loaded",
		zap.Int("mappings", catalogService.Registry().MappingCount()),
		zap.Int("patterns", catalogService.Registry().PatternCount()),
	)

	// Tax classifier from the configured country profiles and reference table
	taxRules, err := config.LoadTaxRules()
	if err != nil {
		log.Fatal("Failed to load tax rules", zap.Error(err))
	}
	countries := tax.NewCountryRegistry(taxRules.Profiles, cfg.Tax.Registrations, cfg.Tax.HomeCountry)
	classifier := tax.NewClassifier(countries, taxRules.Table)
	log.Info("Tax classifier ready",
		zap.String("home_country", cfg.Tax.HomeCountry),
		zap.String("reference_table", taxRules.Table.Version),
	)

	// Application services
	reconciler := inventoryapp.NewReconcilerService(
		erpClient,
		channelClient,
		batchRepo,
		publishedRepo,
		catalogService,
		inventoryapp.Config{
			ChannelID:       cfg.Marketplace.ChannelID,
			MarketplaceID:   cfg.Marketplace.MarketplaceID,
			ChangeThreshold: cfg.Inventory.ChangeThreshold,
			Workers:         cfg.Inventory.Workers,
			SubmitInterval:  rate.Limit(cfg.Inventory.SubmitRate),
			DiscrepancyTopN: cfg.Inventory.DiscrepancyTopN,
		},
		log,
	)

	synthesizer := billingapp.NewSynthesizerService(
		erpClient,
		orderRefRepo,
		catalogService,
		classifier,
		billingapp.Config{
			FreightProductCode:         cfg.Billing.FreightProductCode,
			AllowStandaloneCreditNotes: cfg.Billing.AllowStandaloneCreditNotes,
		},
		log,
	)
	// Transaction intake: the delivery pipeline drops payload files into the
	// spool; synthesis idempotency makes replays harmless
	if cfg.Billing.SpoolDir != "" {
		watcher, err := intake.NewSpoolWatcher(
			intake.SpoolConfig{
				Dir:          cfg.Billing.SpoolDir,
				PollInterval: cfg.Billing.SpoolPollInterval,
			},
			synthesizer,
			log,
		)
		if err != nil {
			log.Fatal("Failed to build spool watcher", zap.Error(err))
		}
		if err := watcher.Start(context.Background()); err != nil {
			log.Fatal("Failed to start spool watcher", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := watcher.Stop(stopCtx); err != nil {
				log.Error("Error stopping spool watcher", zap.Error(err))
			}
		}()
	} else {
		log.Warn("No spool directory configured, transaction intake disabled")
	}

	// Sweep scheduler
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewSweepScheduler(
			scheduler.SweepSchedulerConfig{
				Enabled:        cfg.Scheduler.Enabled,
				SweepInterval:  cfg.Inventory.SweepInterval,
				ReloadInterval: cfg.Catalog.ReloadInterval,
				JobTimeout:     cfg.Scheduler.JobTimeout,
				RetryAttempts:  cfg.Scheduler.RetryAttempts,
				RetryDelay:     cfg.Scheduler.RetryDelay,
			},
			reconciler,
			catalogService,
			log,
		)
		if err != nil {
			log.Fatal("Failed to build sweep scheduler", zap.Error(err))
		}
		if err := sched.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sweep scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Error("Error stopping sweep scheduler", zap.Error(err))
			}
		}()
	} else {
		log.Warn("Scheduler disabled, no sweeps will run")
	}

	log.Info("MarketSync backend started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info("Shutting down", zap.String("signal", sig.String()))
}

// registryBase carries the config-file rules into the registry; store-backed
// rules (mappings, patterns, overrides) arrive via Reload.
func registryBase(cfg *config.CatalogConfig) sku.RegistryConfig {
	// viper map keys are lowercased and unordered; suffixes match uppercased
	// channel SKUs and longer suffixes take priority
	suffixes := make([]sku.FulfillmentSuffix, 0, len(cfg.FulfillmentSuffixes))
	for suffix, hint := range cfg.FulfillmentSuffixes {
		suffixes = append(suffixes, sku.FulfillmentSuffix{
			Suffix: strings.ToUpper(suffix),
			Hint:   hint,
		})
	}
	sort.Slice(suffixes, func(i, j int) bool {
		if len(suffixes[i].Suffix) != len(suffixes[j].Suffix) {
			return len(suffixes[i].Suffix) > len(suffixes[j].Suffix)
		}
		return suffixes[i].Suffix < suffixes[j].Suffix
	})

	cosmetic := make([]string, len(cfg.CosmeticSuffixes))
	for i, s := range cfg.CosmeticSuffixes {
		cosmetic[i] = strings.ToUpper(s)
	}

	return sku.RegistryConfig{
		FulfillmentSuffixes: suffixes,
		CosmeticSuffixes:    cosmetic,
		CatalogWidth:        cfg.CatalogWidth,
		SafetyStockDefault:  decimal.NewFromFloat(cfg.SafetyStockDefault),
	}
}
