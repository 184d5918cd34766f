package redisstream

import (
	"fmt"
	"time"
)

// Config for the Redis Streams audit trail.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Stream management
	Stream       string
	MaxLenApprox int64

	// WriteTimeout bounds each XADD so a slow Redis never stalls dispatch.
	WriteTimeout time.Duration
	// IncludeCommand stores the encoded command with each entry.
	IncludeCommand bool
	// Codec names the xdispatch codec used for the command payload (default: json).
	Codec string
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:         "127.0.0.1:6379",
		Stream:       "xdispatch:audit",
		MaxLenApprox: 100_000,
		WriteTimeout: 500 * time.Millisecond,
		Codec:        "json",
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Stream == "" {
		return fmt.Errorf("config: stream required")
	}
	if c.MaxLenApprox < 0 {
		return fmt.Errorf("config: max_len_approx must be >= 0, got %d", c.MaxLenApprox)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("config: write_timeout must be > 0, got %v", c.WriteTimeout)
	}
	if c.Codec == "" {
		return fmt.Errorf("config: codec required")
	}
	return nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["stream"].(string); ok && v != "" {
		c.Stream = v
	}
	switch v := m["max_len_approx"].(type) {
	case int64:
		c.MaxLenApprox = v
	case int:
		c.MaxLenApprox = int64(v)
	}
	switch v := m["write_timeout"].(type) {
	case time.Duration:
		if v > 0 {
			c.WriteTimeout = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.WriteTimeout = d
		}
	}
	if v, ok := m["include_command"].(bool); ok {
		c.IncludeCommand = v
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c.Codec = v
	}

	return c
}
