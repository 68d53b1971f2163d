package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var embeddedConfigYAML []byte

type LoggingSettings struct {
	Level  string
	Format string
}

type ApprovalSettings struct {
	ListenAddr       string
	UIAllowedOrigins []string
	PairingTokenPath string
}

type GrantsSettings struct {
	Path string
}

type WalletCoreSettings struct {
	URL         string
	UseHardware bool
}

type Config struct {
	Logging    LoggingSettings
	Approval   ApprovalSettings
	Grants     GrantsSettings
	WalletCore WalletCoreSettings
	Network    string
}

// Load reads the embedded defaults, merges any config.yaml found on the
// search paths over them, and fills in derived values.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".config", "ion-host"),
		filepath.Join(home, "config"),
		".",
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(embeddedConfigYAML)); err != nil {
		return nil, fmt.Errorf("embedded config: %w", err)
	}

	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.applyWalletCoreURLFromEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults(home)
	return &cfg, nil
}

// applyWalletCoreURLFromEnv derives the wallet-core endpoint from
// ION_ENV unless the config pins a URL explicitly.
func (c *Config) applyWalletCoreURLFromEnv() error {
	if c.WalletCore.URL != "" {
		return nil
	}

	raw := strings.TrimSpace(os.Getenv("ION_ENV"))
	switch strings.ToLower(raw) {
	case "", "prod", "production":
		c.WalletCore.URL = "http://127.0.0.1:6138/wallet-core/v1"
	case "local":
		c.WalletCore.URL = "http://localhost:6138/wallet-core/v1"
	case "dev", "develop", "development":
		c.WalletCore.URL = "http://127.0.0.1:7138/wallet-core/v1"
	default:
		return fmt.Errorf("invalid ION_ENV %q (allowed: local, develop, prod, empty)", raw)
	}
	return nil
}

func (c *Config) fillDefaults(home string) {
	base := filepath.Join(home, ".config", "ion-host")
	if c.Grants.Path == "" {
		c.Grants.Path = filepath.Join(base, "grants.json")
	}
	if c.Approval.PairingTokenPath == "" {
		c.Approval.PairingTokenPath = filepath.Join(base, "approval.token")
	}
	if c.Network == "" {
		c.Network = "mainnet"
	}
}
