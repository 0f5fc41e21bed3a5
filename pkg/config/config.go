// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigFile         = "GHCP_CONFIG"
	envListenAddr         = "GHCP_LISTEN_ADDR"
	envRepo               = "GHCP_REPO"
	envToken              = "GHCP_TOKEN"
	envDefaultBranch      = "GHCP_DEFAULT_BRANCH"
	envAllowedOrigins     = "GHCP_ALLOWED_ORIGINS"
	envAPIBaseURL         = "GHCP_API_BASE_URL"
	envRequestTimeout     = "GHCP_REQUEST_TIMEOUT"
	envLogLevel           = "GHCP_LOG_LEVEL"
	envServerReadTimeout  = "GHCP_SERVER_READ_TIMEOUT"
	envServerWriteTimeout = "GHCP_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout  = "GHCP_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown   = "GHCP_GRACEFUL_SHUTDOWN"

	defaultListenAddr         = "127.0.0.1:8080"
	defaultBranch             = "main"
	defaultAPIBaseURL         = "https://api.github.com"
	defaultRequestTimeout     = 15 * time.Second
	defaultLogLevel           = "info"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
)

// Config captures runtime settings for the proxy.
//
// Repo and Token are deliberately not validated here: the handler reports
// missing configuration per operation (reads work without a token, writes
// do not), so a partially configured proxy still serves what it can.
type Config struct {
	ListenAddr              string
	Repo                    string
	Token                   string
	DefaultBranch           string
	AllowedOrigins          []string
	APIBaseURL              string
	RequestTimeout          time.Duration
	LogLevel                string
	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// fileConfig mirrors Config for the YAML file, with durations kept as
// strings so values like "15s" parse the same way the env vars do.
type fileConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`
	Repo               string   `yaml:"repo"`
	Token              string   `yaml:"token"`
	DefaultBranch      string   `yaml:"default_branch"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	APIBaseURL         string   `yaml:"api_base_url"`
	RequestTimeout     string   `yaml:"request_timeout"`
	LogLevel           string   `yaml:"log_level"`
	ServerReadTimeout  string   `yaml:"server_read_timeout"`
	ServerWriteTimeout string   `yaml:"server_write_timeout"`
	ServerIdleTimeout  string   `yaml:"server_idle_timeout"`
	GracefulShutdown   string   `yaml:"graceful_shutdown"`
}

// Load builds the configuration from defaults, an optional YAML file named
// by GHCP_CONFIG, and finally environment variable overrides.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:              defaultListenAddr,
		DefaultBranch:           defaultBranch,
		APIBaseURL:              defaultAPIBaseURL,
		RequestTimeout:          defaultRequestTimeout,
		LogLevel:                defaultLogLevel,
		ServerReadTimeout:       defaultServerReadTimeout,
		ServerWriteTimeout:      defaultServerWriteTimeout,
		ServerIdleTimeout:       defaultServerIdleTimeout,
		GracefulShutdownTimeout: defaultGracefulShutdown,
	}

	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.ListenAddr = getString(envListenAddr, cfg.ListenAddr)
	cfg.Repo = getString(envRepo, cfg.Repo)
	cfg.Token = getString(envToken, cfg.Token)
	cfg.DefaultBranch = getString(envDefaultBranch, cfg.DefaultBranch)
	cfg.APIBaseURL = getString(envAPIBaseURL, cfg.APIBaseURL)
	cfg.RequestTimeout = getDuration(envRequestTimeout, cfg.RequestTimeout)
	cfg.LogLevel = strings.ToLower(getString(envLogLevel, cfg.LogLevel))
	cfg.ServerReadTimeout = getDuration(envServerReadTimeout, cfg.ServerReadTimeout)
	cfg.ServerWriteTimeout = getDuration(envServerWriteTimeout, cfg.ServerWriteTimeout)
	cfg.ServerIdleTimeout = getDuration(envServerIdleTimeout, cfg.ServerIdleTimeout)
	cfg.GracefulShutdownTimeout = getDuration(envGracefulShutdown, cfg.GracefulShutdownTimeout)

	if origins := getStringList(envAllowedOrigins); origins != nil {
		cfg.AllowedOrigins = origins
	}

	if cfg.Repo != "" && strings.Count(cfg.Repo, "/") != 1 {
		return Config{}, fmt.Errorf("repo must be owner/name, got %q", cfg.Repo)
	}

	return cfg, nil
}

// OriginAllowed reports whether the given Origin header value may receive
// CORS approval. An empty allow-list admits every origin.
func (c Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// applyFile overlays values from a YAML file onto cfg. Only keys present
// in the file are touched.
func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.Repo, fc.Repo)
	setString(&cfg.Token, fc.Token)
	setString(&cfg.DefaultBranch, fc.DefaultBranch)
	setString(&cfg.APIBaseURL, fc.APIBaseURL)
	setString(&cfg.LogLevel, fc.LogLevel)
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}

	durations := []struct {
		dst *time.Duration
		val string
		key string
	}{
		{&cfg.RequestTimeout, fc.RequestTimeout, "request_timeout"},
		{&cfg.ServerReadTimeout, fc.ServerReadTimeout, "server_read_timeout"},
		{&cfg.ServerWriteTimeout, fc.ServerWriteTimeout, "server_write_timeout"},
		{&cfg.ServerIdleTimeout, fc.ServerIdleTimeout, "server_idle_timeout"},
		{&cfg.GracefulShutdownTimeout, fc.GracefulShutdown, "graceful_shutdown"},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("config file %s: invalid %s: %w", path, d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getStringList(key string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
