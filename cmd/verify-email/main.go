package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/scorimmo/email-verifier/internal/adapters/dns"
	"github.com/scorimmo/email-verifier/internal/config"
	"github.com/scorimmo/email-verifier/internal/core"
	"github.com/scorimmo/email-verifier/internal/factory"
	"github.com/scorimmo/email-verifier/internal/logging"
	"go.uber.org/zap"
)

var (
	// SMTP relay flags
	smtpHost     = flag.String("smtp-host", "in-v3.mailjet.com", "SMTP relay host used for probing")
	smtpPort     = flag.Int("smtp-port", 587, "SMTP relay port")
	smtpUser     = flag.String("smtp-user", "", "SMTP relay username")
	smtpPassword = flag.String("smtp-password", "", "SMTP relay password")
	heloDomain   = flag.String("helo-domain", "example.com", "Domain announced in EHLO")
	fromDomain   = flag.String("from-domain", "example.com", "Domain of the probe sender address")
	dataProbe    = flag.Bool("data-probe", true, "Push past RCPT with a non-committing DATA command")

	// Mailjet flags
	apiKey    = flag.String("api-key", "", "Mailjet API key (or MAILJET_API_KEY)")
	secretKey = flag.String("secret-key", "", "Mailjet secret key (or MAILJET_SECRET_KEY)")

	// Run flags
	timeout    = flag.Duration("timeout", 15*time.Minute, "Overall verification timeout")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <email>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	email := flag.Arg(0)

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = createConfigFromFlags()
	}

	verifierFactory := factory.NewVerifierFactory(cfg, logger)
	prober, err := verifierFactory.CreateProber()
	if err != nil {
		logger.Fatal("Failed to create SMTP prober", zap.Error(err))
	}
	bulkVerifier, err := verifierFactory.CreateBulkVerifier()
	if err != nil {
		logger.Fatal("Failed to create bulk verifier", zap.Error(err))
	}

	cacheFactory := factory.NewCacheFactory(cfg, logger)
	cacheRepo, err := cacheFactory.CreateCacheRepository()
	if err != nil {
		logger.Fatal("Failed to create cache", zap.Error(err))
	}
	cacheTTL, err := cacheFactory.GetCacheTTL()
	if err != nil {
		logger.Fatal("Invalid cache TTL", zap.Error(err))
	}
	initialWait, err := cfg.GetDuration("polling.initial_wait")
	if err != nil {
		logger.Fatal("Invalid polling initial wait", zap.Error(err))
	}
	pollInterval, err := cfg.GetDuration("polling.interval")
	if err != nil {
		logger.Fatal("Invalid polling interval", zap.Error(err))
	}

	service := core.NewVerificationService(
		prober,
		bulkVerifier,
		cacheRepo,
		dns.NewResolver(),
		logger,
		cacheFactory.IsCacheEnabled(),
		cacheTTL,
		initialWait,
		pollInterval,
		cfg.GetInt("polling.max_attempts"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	exitCode := 1
	for event := range service.Verify(ctx, email) {
		printEvent(event, &exitCode)
	}

	if stopper, ok := cacheRepo.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	os.Exit(exitCode)
}

func printEvent(event core.Event, exitCode *int) {
	switch data := event.Data.(type) {
	case core.StepEvent:
		marker := "..."
		if data.Success != nil {
			if *data.Success {
				marker = "ok"
			} else {
				marker = "failed"
			}
		}
		fmt.Printf("[%s] %s\n", marker, data.Message)
		for key, value := range data.Details {
			fmt.Printf("      %s: %s\n", key, value)
		}
	case core.SmtpResultEvent:
		fmt.Printf("SMTP probe: %s (code %d)\n", data.Message, data.Details.Code)
	case core.JobStatusEvent:
		fmt.Printf("Job status: %s (attempt %d)\n", data.Status, data.Attempt)
	case core.HeartbeatEvent:
		// Keep the terminal quiet between polls
	case core.Verdict:
		fmt.Printf("\n=== Result ===\n")
		fmt.Printf("Valid: %t\n", data.Success)
		fmt.Printf("Message: %s\n", data.Message)
		if data.Details != nil {
			if data.Details.Result != "" {
				fmt.Printf("Result: %s\n", data.Details.Result)
			}
			if data.Details.Risk != "" {
				fmt.Printf("Risk: %s\n", data.Details.Risk)
			}
			if data.Details.Code != "" {
				fmt.Printf("Code: %s\n", data.Details.Code)
			}
		}
		if data.Success {
			*exitCode = 0
		}
	case core.ErrorEvent:
		fmt.Printf("\nError: %s\n", data.Message)
		if data.ErrorMessage != "" {
			fmt.Printf("Detail: %s\n", data.ErrorMessage)
		}
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("smtp.host", *smtpHost)
	v.Set("smtp.port", *smtpPort)
	v.Set("smtp.auth_user", envOr(*smtpUser, "SMTP_AUTH_USER"))
	v.Set("smtp.auth_password", envOr(*smtpPassword, "SMTP_AUTH_PASSWORD"))
	v.Set("smtp.helo_domain", *heloDomain)
	v.Set("smtp.from_domain", *fromDomain)
	v.Set("smtp.connect_timeout", "10s")
	v.Set("smtp.command_timeout", "8s")
	v.Set("smtp.data_probe", *dataProbe)

	v.Set("mailjet.api_key", envOr(*apiKey, "MAILJET_API_KEY"))
	v.Set("mailjet.secret_key", envOr(*secretKey, "MAILJET_SECRET_KEY"))
	v.Set("mailjet.base_url", "https://api.mailjet.com/v3/REST")
	v.Set("mailjet.http_timeout", "30s")
	v.Set("mailjet.max_retries", 3)
	v.Set("mailjet.retry_base_delay", "1s")

	v.Set("polling.initial_wait", "20s")
	v.Set("polling.interval", "5s")
	v.Set("polling.max_attempts", 120)

	// A one-shot run has nothing to gain from caching
	v.Set("cache.type", "memory")
	v.Set("cache.enabled", false)
	v.Set("cache.ttl", "600s")
	v.Set("cache.cleanup_frequency", "5m")

	return config.NewFromViper(v)
}

func envOr(flagValue, envKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envKey)
}
