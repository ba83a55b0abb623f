// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package config loads the ohx-core daemon's configuration.

Values are layered the way the teacher's koanf loader does it: struct
defaults, then an optional YAML file, then environment variables, with
environment variables winning over the file and the file winning over
defaults.

# Configuration Sources

  - Struct defaults (defaultConfig)
  - An optional YAML file, found via OHX_CONFIG_PATH or one of
    DefaultConfigPaths
  - Environment variables prefixed OHX_ (highest priority)

# Configuration Structure

  - LoggingConfig: internal/logging level, format, caller info
  - RuntimeConfig: data root, certs/i18n directories, discovery
    interfaces, addon registries, startup bootstrap token recipients,
    container/quota/low-resource policy
  - HTTPConfig: the restartable TLS HTTP core's bind address
  - DiscoveryConfig: the service name and version advertised by UDP
    multicast discovery, plus a resolve timeout that is loaded but not
    read by the discovery resolver (it uses its fixed ResolverTimeout)

# Environment Variables

Environment variables are OHX_-prefixed; envTransformFunc maps the
field name (without repeating its section) onto the section it
belongs to, for example:

	OHX_ROOT_DIR=/var/lib/ohx
	OHX_INTERFACES=eth0,wlan0
	OHX_BIND_ADDR=0.0.0.0:8443
	OHX_SERVICE_NAME=ohx-core
	OHX_LEVEL=debug

OHX_INTERFACES and OHX_ADDON_REGISTRIES accept comma-separated values;
Load splits them into slices after the environment layer is applied.

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatalf("load config: %v", err)
	}
	fmt.Println(cfg.HTTP.BindAddr)

# Thread Safety

The Config struct is not mutated after Load returns, so reading its
fields concurrently needs no synchronization.
*/
package config
