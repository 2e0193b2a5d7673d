package fmusd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"pkt.systems/fmusd/internal/httpapi"
	"pkt.systems/fmusd/internal/rms"
)

const (
	// DefaultListen is the default TCP endpoint the daemon binds to.
	DefaultListen = "127.0.0.1:8001"
	// DefaultListenProto controls the listen network when none is configured.
	DefaultListenProto = "tcp"
	// DefaultSessionTTL is the fixed session lifetime. Sessions expire this
	// long after creation regardless of activity.
	DefaultSessionTTL = time.Hour
	// DefaultMetricsListen is the default metrics endpoint (Prometheus
	// scrape). Empty disables metrics.
	DefaultMetricsListen = ""
	// DefaultShutdownTimeout caps graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultMaxBodyBytes bounds incoming JSON request bodies.
	DefaultMaxBodyBytes = int64(httpapi.DefaultMaxBodyBytes)
)

// Config describes a daemon instance. The zero value is not usable; call
// ApplyDefaults or go through NewServer which does it for you.
type Config struct {
	// Listen is the address the API binds to. The daemon brokers a local
	// user's settings, keep it on loopback unless fronted by something that
	// authenticates.
	Listen      string
	ListenProto string

	// SessionTTL is the hard session lifetime.
	SessionTTL time.Duration

	// APIToken, when set, is required in the X-FMU-Settings-API header on
	// every request except health probes.
	APIToken string

	// UserHome overrides the home directory holding the user's `.fmu`
	// settings. Empty resolves the process owner's home at session creation.
	UserHome string

	// RMSVersion selects the RMS version used when a caller does not pick one.
	RMSVersion string

	// MetricsListen is a separate Prometheus scrape endpoint. Empty disables.
	MetricsListen string

	// MaxBodyBytes bounds incoming JSON request bodies.
	MaxBodyBytes int64

	// ShutdownTimeout caps graceful shutdown when Close is used.
	ShutdownTimeout time.Duration

	// EnableTracing turns on OpenTelemetry spans around every API operation.
	EnableTracing bool
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ListenProto == "" {
		c.ListenProto = DefaultListenProto
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.RMSVersion == "" {
		c.RMSVersion = rms.DefaultVersion
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.ListenProto {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("config: unsupported listen proto %q", c.ListenProto)
	}
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("config: listen address required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.UserHome != "" {
		fi, err := os.Stat(c.UserHome)
		if err != nil {
			return fmt.Errorf("config: user home %q: %w", c.UserHome, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("config: user home %q is not a directory", c.UserHome)
		}
	}
	return nil
}
