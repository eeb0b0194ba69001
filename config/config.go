/*
config.go - Server configuration

PURPOSE:
  Loads server configuration from a YAML file with flag and environment
  overrides. The file is optional; every field has a working default so
  `./server` with no arguments starts a usable dev instance.

PRECEDENCE (highest wins):
  1. Command-line flags (applied by cmd/server/main.go)
  2. YAML file (given via -config or DISPATCH_CONFIG)
  3. Environment variables
  4. Built-in defaults

EXAMPLE FILE:
  port: 8080
  db_path: ./data/dispatch.db
  cors_origins:
    - http://reports.internal:5173

SEE ALSO:
  - cmd/server/main.go: Flag parsing and startup
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the server's runtime settings.
type Config struct {
	Port        int      `yaml:"port"`
	DBPath      string   `yaml:"db_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load builds the configuration from defaults, environment, and an optional
// YAML file. Pass an empty path to skip the file; DISPATCH_CONFIG is used as
// a fallback path.
func Load(path string) (Config, error) {
	cfg := Config{
		Port:   getenvIntDefault("DISPATCH_PORT", 8080),
		DBPath: getenvDefault("DISPATCH_DB", "dispatch.db"),
	}

	if path == "" {
		path = os.Getenv("DISPATCH_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.DBPath == "" {
		return cfg, fmt.Errorf("db_path required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
