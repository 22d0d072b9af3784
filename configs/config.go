package configs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AgentConfig describes one external agent available to a group. Agents are
// matched against dynamic tool names in the order they appear here; when two
// agents would produce colliding slugs the earlier one wins.
type AgentConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled,omitempty"` // nil means enabled
}

// IsEnabled treats an absent enabled flag as true.
func (a AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// ResourceConfig describes one read-only document a group exposes, backed by
// a file on disk.
type ResourceConfig struct {
	URI         string `yaml:"uri"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	MIMEType    string `yaml:"mime_type,omitempty"`
	File        string `yaml:"file"`
}

// SandboxConfig points a group at a sandbox-runner service that discovers
// and executes tenant-authored scripted tools.
type SandboxConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// GroupConfig defines one protocol endpoint in the YAML file.
type GroupConfig struct {
	Name      string           `yaml:"name"`
	Resources []ResourceConfig `yaml:"resources,omitempty"`
	Agents    []AgentConfig    `yaml:"agents,omitempty"`
	Sandbox   *SandboxConfig   `yaml:"sandbox,omitempty"`
}

// FileConfig defines the structure loaded from the YAML configuration file.
type FileConfig struct {
	Groups []GroupConfig `yaml:"groups"`
}

// Config holds the final application configuration, merged from file and
// environment variables. Fields are loaded from environment variables with
// the prefix "MCPHUB_", potentially overriding file settings.
type Config struct {
	// Config File Path (Loaded first from env)
	ConfigFilePath string `envconfig:"CONFIG_FILE" default:"configs/mcphub.yaml"`

	// File-loaded fields
	Groups []GroupConfig

	// Environment-overridable fields
	ListenAddr               string        `envconfig:"LISTEN_ADDR" default:":8080"`
	HTTPClientTimeout        time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	ShutdownTimeout          time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	ServerReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"5s"`
	ServerWriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"0"` // 0: elicitation waits hold responses open
	ServerIdleTimeout        time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ElicitationTimeout       time.Duration `envconfig:"ELICITATION_TIMEOUT" default:"5m"`
	OtelExporterOtlpEndpoint string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool          `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel                 string        `envconfig:"LOG_LEVEL" default:"info"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration first from environment variables (to get the file
// path), then from the specified YAML file, and finally merges/overrides
// with environment variables again.
func Load() (*Config, error) {
	// 1. Load initial config from Env (primarily to get ConfigFilePath)
	var initialCfg Config
	if err := envconfig.Process("mcphub", &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	// 2. Load group definitions from the YAML file if a path is specified
	fileCfg := FileConfig{}
	if initialCfg.ConfigFilePath != "" {
		yamlFile, err := os.ReadFile(initialCfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
		if err := yaml.Unmarshal(yamlFile, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
		slog.Info("Loaded configuration from file.", "path", initialCfg.ConfigFilePath)
	} else {
		slog.Info("No config file path specified (MCPHUB_CONFIG_FILE), using defaults/env vars only.")
	}

	finalCfg := initialCfg
	finalCfg.Groups = make([]GroupConfig, 0, len(fileCfg.Groups))
	for _, g := range fileCfg.Groups {
		if g.Name == "" {
			slog.Warn("Ignoring group definition without a name")
			continue
		}
		finalCfg.Groups = append(finalCfg.Groups, g)
	}

	// Process environment variables AGAIN to allow overrides over file settings.
	if err := envconfig.Process("mcphub", &finalCfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}

	return &finalCfg, nil
}
