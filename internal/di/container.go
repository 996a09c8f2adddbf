package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/scorimmo/email-verifier/internal/adapters/dns"
	"github.com/scorimmo/email-verifier/internal/config"
	"github.com/scorimmo/email-verifier/internal/core"
	"github.com/scorimmo/email-verifier/internal/factory"
	"github.com/scorimmo/email-verifier/internal/logging"
	transport "github.com/scorimmo/email-verifier/internal/transport/http"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewVerifierFactory); err != nil {
		return nil, err
	}

	// Register SMTP prober
	if err := container.Provide(func(f *factory.VerifierFactory) (core.Prober, error) {
		return f.CreateProber()
	}); err != nil {
		return nil, err
	}

	// Register bulk verifier
	if err := container.Provide(func(f *factory.VerifierFactory) (core.BulkVerifier, error) {
		return f.CreateBulkVerifier()
	}); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}

	// Register MX resolver
	if err := container.Provide(func() core.MXResolver {
		return dns.NewResolver()
	}); err != nil {
		return nil, err
	}

	// Register verification service
	if err := container.Provide(func(
		prober core.Prober,
		verifier core.BulkVerifier,
		cacheRepo core.CacheRepository,
		resolver core.MXResolver,
		logger *zap.Logger,
		cfg *config.Config,
		cacheFactory *factory.CacheFactory,
	) (*core.VerificationService, error) {
		cacheTTL, err := cacheFactory.GetCacheTTL()
		if err != nil {
			return nil, err
		}
		initialWait, err := cfg.GetDuration("polling.initial_wait")
		if err != nil {
			return nil, err
		}
		pollInterval, err := cfg.GetDuration("polling.interval")
		if err != nil {
			return nil, err
		}
		return core.NewVerificationService(
			prober,
			verifier,
			cacheRepo,
			resolver,
			logger,
			cacheFactory.IsCacheEnabled(),
			cacheTTL,
			initialWait,
			pollInterval,
			cfg.GetInt("polling.max_attempts"),
		), nil
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		cfg *config.Config,
		service *core.VerificationService,
		logger *zap.Logger,
	) (*transport.Server, error) {
		maxStreamDuration, err := cfg.GetDuration("server.max_stream_duration")
		if err != nil {
			return nil, err
		}
		return transport.NewServer(
			cfg.GetString("server.listen_address"),
			maxStreamDuration,
			service,
			logger,
		), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}
