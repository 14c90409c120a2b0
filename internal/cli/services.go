package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/semmy-space/dirctl/internal/broker"
	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/vault"
)

// ServiceProvider lazily builds the effective config and the broker.
// Commands that only edit the config file never touch the vault.
type ServiceProvider struct {
	file   *config.Config
	lookup func(string) (string, bool)
	logger *slog.Logger

	cfgOnce sync.Once
	cfg     *config.Config
	cfgErr  error

	brokerOnce sync.Once
	broker     *broker.Broker
	brokerErr  error
}

// NewServiceProvider creates a ServiceProvider over the config file contents.
// The environment is overlaid when the config is first needed.
func NewServiceProvider(file *config.Config) *ServiceProvider {
	return &ServiceProvider{file: file, lookup: os.LookupEnv, logger: logging.Discard()}
}

// SetLogger sets the logger handed to the vault and the broker.
func (sp *ServiceProvider) SetLogger(logger *slog.Logger) {
	if logger != nil {
		sp.logger = logger
	}
}

// Config returns the validated effective config: file values, then the
// environment, then defaults.
func (sp *ServiceProvider) Config() (*config.Config, error) {
	sp.cfgOnce.Do(func() {
		cfg := *sp.file
		if err := cfg.ApplyEnv(sp.lookup); err != nil {
			sp.cfgErr = err
			return
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			sp.cfgErr = err
			return
		}
		sp.cfg = &cfg
	})
	return sp.cfg, sp.cfgErr
}

// Broker returns the broker, opening the vault on first call.
func (sp *ServiceProvider) Broker() (*broker.Broker, error) {
	sp.brokerOnce.Do(func() {
		cfg, err := sp.Config()
		if err != nil {
			sp.brokerErr = err
			return
		}

		key, err := sp.encryptionKey(cfg)
		if err != nil {
			sp.brokerErr = err
			return
		}

		v, err := vault.Open(cfg.StorePath, key, vault.WithLogger(sp.logger))
		if err != nil {
			sp.brokerErr = fmt.Errorf("failed to open credential store: %w", err)
			return
		}

		sp.broker, sp.brokerErr = broker.New(cfg, v, broker.WithLogger(sp.logger))
	})
	return sp.broker, sp.brokerErr
}

// encryptionKey loads the key from the configured source. No key means the
// vault stores tokens in plain text.
func (sp *ServiceProvider) encryptionKey(cfg *config.Config) ([]byte, error) {
	if cfg.KeySource != config.KeySourceKeyring {
		return cfg.EncryptionKeyBytes()
	}

	source, err := vault.OpenKeyring(config.AppName, config.DataDir())
	if err != nil {
		return nil, err
	}
	return source.Key()
}
