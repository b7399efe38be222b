package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceOpenTDB  = "opentdb"
	SourcePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Provider struct {
		Source         string `yaml:"source"`
		BaseURL        string `yaml:"base_url"`
		Timeout        string `yaml:"timeout"`
		MaxRetries     *int   `yaml:"max_retries"`
		InitialBackoff string `yaml:"initial_backoff"`
	} `yaml:"provider"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		TTL       string `yaml:"ttl"`
		Namespace string `yaml:"namespace"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		Username     string `yaml:"username"`
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields the zero config, so
// the engine can run on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ProviderSource returns the configured question source, defaulting to opentdb.
func (c Config) ProviderSource() string {
	if c.Provider.Source == "" {
		return SourceOpenTDB
	}
	return c.Provider.Source
}

// MaxRetries returns provider.max_retries, or fallback when unset.
func (c Config) MaxRetries(fallback int) int {
	if c.Provider.MaxRetries == nil || *c.Provider.MaxRetries < 0 {
		return fallback
	}
	return *c.Provider.MaxRetries
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
