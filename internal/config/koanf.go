package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// ConfigPathEnvVar points at an optional YAML config file.
	ConfigPathEnvVar = "CONFIG_PATH"

	envPrefix = "COURIER_"
)

// DefaultConfigPaths are searched when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// legacyServerEnv maps the gateway's historical variable names onto koanf paths.
var legacyServerEnv = map[string]string{
	"SERVER_PORT":           "server.port",
	"SERVER_READ_TIMEOUT":   "server.read_timeout",
	"SERVER_WRITE_TIMEOUT":  "server.write_timeout",
	"DB_HOST":               "database.host",
	"DB_PORT":               "database.port",
	"DB_USER":               "database.user",
	"DB_PASSWORD":           "database.password",
	"DB_NAME":               "database.dbname",
	"DB_SSLMODE":            "database.sslmode",
	"REDIS_ADDR":            "redis.addr",
	"REDIS_PASSWORD":        "redis.password",
	"REDIS_DB":              "redis.db",
	"NEW_RELIC_APP_NAME":    "newrelic.app_name",
	"NEW_RELIC_LICENSE_KEY": "newrelic.license_key",
	"NEW_RELIC_ENABLED":     "newrelic.enabled",
}

// LoadAgent loads the agent configuration: defaults, then file, then env.
func LoadAgent() (*AgentConfig, error) {
	cfg := defaultAgentConfig()
	k, err := load(cfg, false)
	if err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadServer loads the gateway configuration: defaults, then file, then env.
func LoadServer() (*ServerConfig, error) {
	cfg := defaultServerConfig()
	k, err := load(cfg, true)
	if err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load(defaults any, legacy bool) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if legacy {
		if err := k.Load(env.Provider("", ".", legacyTransform), nil); err != nil {
			return nil, fmt.Errorf("failed to load legacy environment variables: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return k, nil
}

// envTransform turns COURIER_TRACKING_POLL_INTERVAL into tracking.poll_interval.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// legacyTransform keeps only the known historical names; koanf skips empty keys.
func legacyTransform(key string) string {
	return legacyServerEnv[key]
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
