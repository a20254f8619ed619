// Package config loads the server and CLI settings from .env, the connection
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/brokerage"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/holdings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DefaultConnectionFile = "connection.json"
	DefaultDBPath         = "options.db"
	DefaultPort           = "8080"
)

type Config struct {
	Env             string
	Port            string
	DBPath          string
	AccountID       string
	CacheDuration   time.Duration
	ProviderTimeout time.Duration
	SnapTrade       brokerage.SnapTradeConfig

	// CheckInterval is the period of the processing order poller. The poller
	// is off unless it is set.
	CheckInterval time.Duration

	// File is the connection file that was read, empty when none was found
	File string
}

// Load reads .env into the process environment, then the connection file named
// by CONNECTION_CONFIG. Environment variables override file keys, so
// SNAPTRADE_CLIENT_ID wins over "snaptrade_client_id". A missing file is not an
// error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	path := os.Getenv("CONNECTION_CONFIG")
	if path == "" {
		path = DefaultConnectionFile
	}
	return LoadFile(path)
}

// LoadFile reads the given connection file plus the environment
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("cache_duration", holdings.DefaultTTL.String())
	v.SetDefault("provider_timeout", holdings.DefaultTimeout.String())
	v.SetDefault("snaptrade_base_url", brokerage.DefaultBaseURL)
	v.SetDefault("check_interval", "0")

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		log.Warn().Str("file", path).Msg("connection file not found, using environment only")
	} else {
		cfg.File = path
		log.Info().Str("file", path).Msg("connection file loaded")
	}

	cacheDuration, err := seconds(v.GetString("cache_duration"))
	if err != nil {
		return nil, fmt.Errorf("cache_duration: %w", err)
	}
	providerTimeout, err := seconds(v.GetString("provider_timeout"))
	if err != nil {
		return nil, fmt.Errorf("provider_timeout: %w", err)
	}

	if cfg.CheckInterval, err = interval(v.GetString("check_interval")); err != nil {
		return nil, fmt.Errorf("check_interval: %w", err)
	}

	cfg.Env = v.GetString("env")
	cfg.Port = v.GetString("port")
	cfg.DBPath = v.GetString("db_path")
	cfg.AccountID = v.GetString("account_id")
	cfg.CacheDuration = cacheDuration
	cfg.ProviderTimeout = providerTimeout
	cfg.SnapTrade = brokerage.SnapTradeConfig{
		ClientID:    v.GetString("snaptrade_client_id"),
		ConsumerKey: v.GetString("snaptrade_consumer_key"),
		UserID:      v.GetString("snaptrade_user_id"),
		UserSecret:  v.GetString("snaptrade_user_secret"),
		BaseURL:     v.GetString("snaptrade_base_url"),
		Timeout:     providerTimeout,
	}
	return cfg, nil
}

// Holdings returns the cache settings
func (c *Config) Holdings() holdings.Config {
	return holdings.Config{
		TTL:       c.CacheDuration,
		Timeout:   c.ProviderTimeout,
		AccountID: c.AccountID,
	}
}

// seconds parses a Go duration such as "90s", or a bare number of seconds
func seconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive, got %s", s)
		}
		return time.Duration(n * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// interval is seconds with zero, in any spelling, meaning disabled
func interval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n == 0 {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d == 0 {
		return 0, nil
	}
	return seconds(s)
}
