package main

import (
	"fmt"
	"log"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/creditmeter/internal/catalog"
	"github.com/davidbz/creditmeter/internal/config"
	"github.com/davidbz/creditmeter/internal/credits"
	"github.com/davidbz/creditmeter/internal/http"
	"github.com/davidbz/creditmeter/internal/http/middleware"
	"github.com/davidbz/creditmeter/internal/ledger"
	ledgermemory "github.com/davidbz/creditmeter/internal/ledger/memory"
	ledgerredis "github.com/davidbz/creditmeter/internal/ledger/redis"
	"github.com/davidbz/creditmeter/internal/observability"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewEventBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}
	if err := container.Provide(func(bus *observability.EventBus) credits.EventPublisher {
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}

	// Pricing Catalog
	if err := container.Provide(func(cfg *config.CatalogConfig, logger *zap.Logger) (*catalog.Catalog, error) {
		if cfg.Path != "" {
			logger.Info("loading pricing catalog from file", zap.String("path", cfg.Path))
			return catalog.LoadFile(cfg.Path)
		}
		return catalog.Default(), nil
	}); err != nil {
		log.Fatalf("Failed to provide catalog: %v", err)
	}

	// Account Ledger
	if err := container.Provide(func(
		ledgerCfg *config.LedgerConfig,
		redisCfg *config.RedisConfig,
		logger *zap.Logger,
	) (ledger.Ledger, error) {
		switch ledgerCfg.Backend {
		case "redis":
			client := goredis.NewClient(&goredis.Options{
				Addr:     redisCfg.Addr,
				Password: redisCfg.Password,
				DB:       redisCfg.DB,
			})
			logger.Info("using redis ledger", zap.String("addr", redisCfg.Addr))
			return ledgerredis.New(client), nil
		case "memory":
			logger.Warn("using in-memory ledger, balances will not survive a restart")
			return ledgermemory.New(), nil
		default:
			return nil, fmt.Errorf("unknown ledger backend %q", ledgerCfg.Backend)
		}
	}); err != nil {
		log.Fatalf("Failed to provide ledger: %v", err)
	}

	// Metering Service
	if err := container.Provide(credits.NewService); err != nil {
		log.Fatalf("Failed to provide metering service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
