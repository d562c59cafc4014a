package config

import (
	"errors"
	"fmt"
	"os"

	"annie/pkg/logger"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Dir holds index configs and snapshots
	Dir    string         `yaml:"dir"`
	Server ServerConfig   `yaml:"server"`
	Log    logger.Options `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// CacheSize is the number of cached search responses, 0 disables the cache
	CacheSize int `yaml:"cache_size"`
	// SaveQueue bounds pending asynchronous saves
	SaveQueue int `yaml:"save_queue"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dir: "./data",
		Server: ServerConfig{
			Addr:      ":8080",
			CacheSize: 1024,
			SaveQueue: 64,
		},
		Log: logger.Options{Level: logger.InfoLevel},
	}
}

// FromFile reads a yaml file over Default.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("dir must not be empty"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("server.cache_size must be >= 0, got %d", c.Server.CacheSize))
	}
	if c.Server.SaveQueue <= 0 {
		errs = append(errs, fmt.Errorf("server.save_queue must be > 0, got %d", c.Server.SaveQueue))
	}
	if _, _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
