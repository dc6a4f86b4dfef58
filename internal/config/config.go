// Package config composes the ambient configuration surface for agentctl:
// HTTP server binding, supervisor discovery/health tuning, sandbox defaults
// applied to newly created plugin sandboxes, and logging. Mirrors the
// teacher's DaemonConfig composition style — one JSON-tagged sub-struct per
// concern, loaded from a file or defaulted, with a Validate pass.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server     ServerConfig          `json:"server" yaml:"server"`
	Supervisor SupervisorConfig      `json:"supervisor" yaml:"supervisor"`
	Sandbox    SandboxDefaultsConfig `json:"sandbox" yaml:"sandbox"`
	Logging    LoggingConfig         `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr      string        `json:"listen_addr" yaml:"listen_addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SupervisorConfig mirrors supervisor.Config field-for-field; cmd/agentctl
// copies it into a supervisor.Config field by field, so the config package
// never imports internal/supervisor (which would invert the dependency direction).
type SupervisorConfig struct {
	AutoDiscover         bool          `json:"auto_discover" yaml:"auto_discover"`
	HealthCheckInterval  time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	ReconnectOnFailure   bool          `json:"reconnect_on_failure" yaml:"reconnect_on_failure"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
}

// SandboxDefaultsConfig seeds the resource limits newly created plugin
// sandboxes get unless overridden per-plugin.
type SandboxDefaultsConfig struct {
	MaxMemoryMB           uint64 `json:"max_memory_mb" yaml:"max_memory_mb"`
	MaxCPUTimeMS          uint64 `json:"max_cpu_time_ms" yaml:"max_cpu_time_ms"`
	MaxFileSizeMB         uint64 `json:"max_file_size_mb" yaml:"max_file_size_mb"`
	MaxNetworkConnections uint32 `json:"max_network_connections" yaml:"max_network_connections"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	OutputFile string `json:"output_file" yaml:"output_file"`
}

const (
	DefaultDaemonHost = "localhost"
	DefaultDaemonPort = "9090"
	DefaultListenAddr = DefaultDaemonHost + ":" + DefaultDaemonPort
)

// GetDaemonURL returns the daemon URL with optional host/port overrides.
func GetDaemonURL(host, port string) string {
	if host == "" {
		host = DefaultDaemonHost
	}
	if port == "" {
		port = DefaultDaemonPort
	}
	return "http://" + host + ":" + port
}

// NewDefault returns production-ready defaults for zero-configuration startup.
func NewDefault() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      DefaultListenAddr,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			AutoDiscover:         true,
			HealthCheckInterval:  60 * time.Second,
			ReconnectOnFailure:   true,
			MaxReconnectAttempts: 3,
		},
		Sandbox: SandboxDefaultsConfig{
			MaxMemoryMB:           256,
			MaxCPUTimeMS:          30_000,
			MaxFileSizeMB:         100,
			MaxNetworkConnections: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a JSON or YAML config file (by extension) over top of the
// defaults. An empty or missing path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := NewDefault()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks internal consistency before the daemon starts serving.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen_addr cannot be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read_timeout must be positive, got %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write_timeout must be positive, got %v", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}
	if c.Supervisor.HealthCheckInterval <= 0 {
		return fmt.Errorf("supervisor health_check_interval must be positive, got %v", c.Supervisor.HealthCheckInterval)
	}
	if c.Supervisor.MaxReconnectAttempts < 0 {
		return fmt.Errorf("supervisor max_reconnect_attempts cannot be negative, got %d", c.Supervisor.MaxReconnectAttempts)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// SaveToFile persists the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
