// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the ohx-core daemon's configuration, layered the
// way the teacher does it: struct defaults, then an optional YAML file,
// then environment variables, with environment variables winning.
//
// Grounded on the teacher's internal/config/koanf.go, trimmed to the
// keys spec.md §6 actually names instead of the teacher's media-server
// settings tree.
package config

import "time"

// Config is the complete ohx-core daemon configuration (spec.md §6,
// SPEC_FULL.md §9.3).
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	HTTP      HTTPConfig      `koanf:"http"`
	Discovery DiscoveryConfig `koanf:"discovery"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// RuntimeConfig holds the daemon's filesystem roots and deployment-mode
// flags (spec.md §6).
type RuntimeConfig struct {
	// RootDir is the OHX data root: certs, config, webui, rules, scripts,
	// interconnects, backups, startup tokens all live beneath it.
	RootDir string `koanf:"root_dir"`

	// CertsDir overrides the certs subdirectory; defaults to
	// <RootDir>/certs when empty.
	CertsDir string `koanf:"certs_dir"`

	// I18nDir locates translation bundles served alongside the web UI.
	I18nDir string `koanf:"i18n_dir"`

	// Interfaces restricts UDP multicast discovery to these network
	// interface names. Empty means "all interfaces".
	Interfaces []string `koanf:"interfaces"`

	// AddonRegistries lists the addon registry URLs this daemon consults
	// when resolving installable addons.
	AddonRegistries []string `koanf:"addon_registries"`

	// StartupServices lists the service names the JWKS authority mints a
	// short-lived bootstrap token for on every daemon startup (see
	// SPEC_FULL.md §10.2, original_source/ohx-auth/src/create_system_auth_key.rs).
	StartupServices []string `koanf:"startup_services"`

	// ContainerMode signals the daemon is running inside a container,
	// affecting how it probes disk/memory pressure.
	ContainerMode bool `koanf:"container_mode"`

	// CreateRoot allows the daemon to create RootDir if it does not
	// exist, instead of failing at startup.
	CreateRoot bool `koanf:"create_root"`

	// LowMemoryPolicy names the action taken when available memory drops
	// below the daemon's internal threshold: "warn" or "reject".
	LowMemoryPolicy string `koanf:"low_memory_policy"`

	// LowDiskSpacePolicy names the action taken when available disk space
	// drops below the daemon's internal threshold: "warn" or "reject".
	LowDiskSpacePolicy string `koanf:"low_disk_space_policy"`

	// DisableQuotaEnforcement turns off storage-quota checks entirely.
	DisableQuotaEnforcement bool `koanf:"disable_quota_enforcement"`

	// ForceDocker overrides container-environment auto-detection.
	ForceDocker bool `koanf:"force_docker"`
}

// HTTPConfig configures the restartable TLS HTTP core (C11).
type HTTPConfig struct {
	// BindAddr is the "host:port" the HTTP core binds with TLS.
	BindAddr string `koanf:"bind_addr"`
}

// DiscoveryConfig names the identity this daemon advertises and resolves
// peers under (C7, C8, C9).
type DiscoveryConfig struct {
	ServiceName    string        `koanf:"service_name"`
	Version        string        `koanf:"version"`
	ResolveTimeout time.Duration `koanf:"resolve_timeout"`
}

// Validate checks the fields Load cannot default its way out of.
func (c *Config) Validate() error {
	return nil
}
