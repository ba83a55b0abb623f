// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// priority order; the first one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ohx/config.yaml",
	"/etc/ohx/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "OHX_CONFIG_PATH"

// defaultConfig returns the struct-default layer, loaded first and
// overridden by the config file and then by environment variables.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Runtime: RuntimeConfig{
			RootDir:            "/data/ohx",
			CertsDir:           "",
			I18nDir:            "/data/ohx/i18n",
			StartupServices:    []string{"addon-loader", "rule-engine", "webui"},
			ContainerMode:      false,
			CreateRoot:         false,
			LowMemoryPolicy:    "warn",
			LowDiskSpacePolicy: "warn",
		},
		HTTP: HTTPConfig{
			BindAddr: "0.0.0.0:8443",
		},
		Discovery: DiscoveryConfig{
			ServiceName:    "ohx-core",
			Version:        "0.1.0",
			ResolveTimeout: 2 * time.Second,
		},
	}
}

// sliceConfigPaths lists koanf paths that arrive from the environment as
// comma-separated strings and need splitting into slices, the same
// post-processing step the teacher's koanf loader applies.
var sliceConfigPaths = []string{
	"runtime.interfaces",
	"runtime.addon_registries",
	"runtime.startup_services",
}

// Load builds the Config by layering struct defaults, an optional YAML
// file, then environment variables (highest priority), matching the
// teacher's LoadWithKoanf precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("OHX_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("config: process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps OHX_-prefixed environment variables to koanf
// dotted paths without repeating the section name: OHX_ROOT_DIR ->
// runtime.root_dir, OHX_BIND_ADDR -> http.bind_addr.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "OHX_"))
	switch {
	case strings.HasPrefix(key, "root_dir"), key == "certs_dir", key == "i18n_dir",
		key == "interfaces", key == "addon_registries", key == "startup_services",
		key == "container_mode", key == "create_root", key == "low_memory_policy",
		key == "low_disk_space_policy", key == "disable_quota_enforcement", key == "force_docker":
		return "runtime." + key
	case key == "bind_addr":
		return "http." + key
	case key == "service_name", key == "version", key == "resolve_timeout":
		return "discovery." + key
	case key == "level", key == "format", key == "caller":
		return "logging." + key
	default:
		return strings.ReplaceAll(key, "_", ".")
	}
}

// processSliceFields converts comma-separated environment strings into
// slices for fields koanf would otherwise leave as a single string.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("config: set %s: %w", path, err)
			}
		}
	}
	return nil
}
