package factory

import (
	"fmt"

	"github.com/scorimmo/email-verifier/internal/adapters/mailjet"
	"github.com/scorimmo/email-verifier/internal/adapters/smtpprobe"
	"github.com/scorimmo/email-verifier/internal/config"
	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// VerifierFactory creates the probing and bulk verification adapters
type VerifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewVerifierFactory creates a new verifier factory
func NewVerifierFactory(cfg *config.Config, logger *zap.Logger) *VerifierFactory {
	return &VerifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProber creates the SMTP prober from the relay configuration
func (f *VerifierFactory) CreateProber() (core.Prober, error) {
	connectTimeout, err := f.cfg.GetDuration("smtp.connect_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP connect timeout: %w", err)
	}
	commandTimeout, err := f.cfg.GetDuration("smtp.command_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP command timeout: %w", err)
	}

	return smtpprobe.New(smtpprobe.Config{
		Host:           f.cfg.GetString("smtp.host"),
		Port:           f.cfg.GetInt("smtp.port"),
		AuthUser:       f.cfg.GetString("smtp.auth_user"),
		AuthPassword:   f.cfg.GetString("smtp.auth_password"),
		HeloDomain:     f.cfg.GetString("smtp.helo_domain"),
		FromDomain:     f.cfg.GetString("smtp.from_domain"),
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
		DataProbe:      f.cfg.GetBool("smtp.data_probe"),
	}, f.logger), nil
}

// CreateBulkVerifier creates the remote bulk verification client
func (f *VerifierFactory) CreateBulkVerifier() (core.BulkVerifier, error) {
	httpTimeout, err := f.cfg.GetDuration("mailjet.http_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid Mailjet HTTP timeout: %w", err)
	}
	retryBaseDelay, err := f.cfg.GetDuration("mailjet.retry_base_delay")
	if err != nil {
		return nil, fmt.Errorf("invalid Mailjet retry base delay: %w", err)
	}

	client := mailjet.NewClient(mailjet.Config{
		APIKey:         f.cfg.GetString("mailjet.api_key"),
		SecretKey:      f.cfg.GetString("mailjet.secret_key"),
		BaseURL:        f.cfg.GetString("mailjet.base_url"),
		HTTPTimeout:    httpTimeout,
		MaxRetries:     f.cfg.GetInt("mailjet.max_retries"),
		RetryBaseDelay: retryBaseDelay,
	}, f.logger)

	if !client.HasValidCredentials() {
		f.logger.Warn("Mailjet credentials are not configured, bulk verification will fail")
	}
	return client, nil
}
