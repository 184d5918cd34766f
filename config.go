package xdispatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the dispatcher settings.
//
//	default_timeout: 2s
//	registry:
//	  name: memory
//	  options:
//	    strict_types: true
//	observer_pool:
//	  workers: 4
//	  buffer_size: 2048
type Config struct {
	DefaultTimeout time.Duration      `yaml:"default_timeout"`
	Registry       RegistryConfig     `yaml:"registry"`
	ObserverPool   ObserverPoolConfig `yaml:"observer_pool"`
}

type RegistryConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

type ObserverPoolConfig struct {
	Workers    int `yaml:"workers"`
	BufferSize int `yaml:"buffer_size"`
}

// ParseConfig decodes YAML and validates the result.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse dispatcher config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read dispatcher config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) Validate() error {
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("config: default_timeout must be >= 0, got %v", c.DefaultTimeout)
	}
	if c.ObserverPool.Workers < 0 {
		return fmt.Errorf("config: observer_pool.workers must be >= 0, got %d", c.ObserverPool.Workers)
	}
	if c.ObserverPool.BufferSize < 0 {
		return fmt.Errorf("config: observer_pool.buffer_size must be >= 0, got %d", c.ObserverPool.BufferSize)
	}
	return nil
}
