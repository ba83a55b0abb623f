// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Command ohx-core is the OHX trust-and-discovery daemon.

It owns four responsibilities for every other OHX process on the host:
issuing and rotating the system JWKS, keeping a self-signed TLS
certificate fresh, answering UDP multicast service-discovery requests,
and serving the restartable TLS HTTP core that fronts the web UI, the
addon reverse proxy, and the configuration/rules/scripts/interconnects
write endpoints.

# Startup Sequence

  1. Load configuration (internal/config), then initialize logging from
     its LoggingConfig.
  2. Ensure the data root directory exists, creating it when
     Runtime.CreateRoot is set.
  3. Block on internal/clockgate until the system clock looks sane.
  4. Generate or load the self-signed TLS certificate
     (internal/certs.Manager.Ensure).
  5. Generate or load the JWKS signing key
     (internal/jwks.Authority.Ensure), then mint startup bootstrap
     tokens for Runtime.StartupServices.
  6. Build the redirect table, the bearer-JWT verifier, the HTTP server
     core, the discovery resolver, and the configuration file watcher.
  7. Register the certificate refresh loop and JWKS cycle loop on the
     trust layer, the discovery resolver on the discovery layer, and
     the HTTP server on the API layer of the supervisor tree
     (internal/supervisor), then run the tree until a shutdown signal
     arrives.

# Signal Handling

SIGINT and SIGTERM are translated into one context cancellation
(internal/shutdown.NotifyContext), which the supervisor tree propagates
to every supervised service.

# Configuration

See internal/config for the full set of OHX_-prefixed environment
variables and the optional YAML config file.
*/
package main
