// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohx-project/ohx-core/internal/certs"
	"github.com/ohx-project/ohx-core/internal/clockgate"
	"github.com/ohx-project/ohx-core/internal/config"
	"github.com/ohx-project/ohx-core/internal/configwatch"
	"github.com/ohx-project/ohx-core/internal/discovery"
	"github.com/ohx-project/ohx-core/internal/httpserver"
	"github.com/ohx-project/ohx-core/internal/jwks"
	"github.com/ohx-project/ohx-core/internal/jwtauth"
	"github.com/ohx-project/ohx-core/internal/logging"
	"github.com/ohx-project/ohx-core/internal/pathutil"
	"github.com/ohx-project/ohx-core/internal/redirect"
	"github.com/ohx-project/ohx-core/internal/shutdown"
	"github.com/ohx-project/ohx-core/internal/supervisor"
)

//nolint:gocyclo // sequential startup, mirrors original_source/core/src/main.rs
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("starting ohx-core")

	if err := ensureRootDir(cfg.Runtime.RootDir, cfg.Runtime.CreateRoot); err != nil {
		logging.Fatal().Err(err).Msg("root directory is not usable")
	}

	certsDir := cfg.Runtime.CertsDir
	if certsDir == "" {
		certsDir = filepath.Join(cfg.Runtime.RootDir, "certs")
	}
	if err := os.MkdirAll(certsDir, 0o755); err != nil {
		logging.Fatal().Err(err).Msg("failed to create certs directory")
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := clockgate.Wait(ctx, nil); err != nil {
		logging.Fatal().Err(err).Msg("clockgate: system clock never became sane")
	}

	certMgr := certs.NewManager(certsDir)
	if _, _, err := certMgr.Ensure(); err != nil {
		logging.Fatal().Err(err).Msg("failed to provision TLS certificate")
	}

	authority := jwks.NewAuthority(certsDir)
	if _, err := authority.Ensure(); err != nil {
		logging.Fatal().Err(err).Msg("failed to provision JWKS signing key")
	}
	if err := authority.IssueStartupTokens(cfg.Runtime.RootDir, cfg.Runtime.StartupServices); err != nil {
		logging.Error().Err(err).Msg("failed to issue startup bootstrap tokens")
	}

	layout := pathutil.NewLayout(certsDir)
	redirects := redirect.NewTable()
	verifier := jwtauth.NewVerifier(authority)

	httpSrv := httpserver.NewServer(
		cfg.Runtime.RootDir,
		cfg.HTTP.BindAddr,
		layout,
		redirects,
		verifier,
		cfg.Discovery.ServiceName,
		cfg.Discovery.Version,
	)

	iface := ""
	if len(cfg.Runtime.Interfaces) > 0 {
		iface = cfg.Runtime.Interfaces[0]
		if len(cfg.Runtime.Interfaces) > 1 {
			logging.Warn().Strs("interfaces", cfg.Runtime.Interfaces).
				Msg("discovery currently binds a single interface; using the first configured")
		}
	}
	identity := discovery.Identity{
		ServiceName: cfg.Discovery.ServiceName,
		Version:     cfg.Discovery.Version,
		Addresses:   []string{cfg.HTTP.BindAddr},
	}
	resolver := discovery.NewResolver(identity, iface)

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddTrustService(certs.NewRefreshLoop(certMgr, httpSrv))
	tree.AddTrustService(jwks.NewCycleLoop(authority))
	tree.AddDiscoveryService(resolver)
	tree.AddAPIService(httpSrv)

	configDir := pathutil.ConfigRootDir(cfg.Runtime.RootDir)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		logging.Fatal().Err(err).Msg("failed to create config directory")
	}
	watcher, err := configwatch.New(configDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start config watcher")
	}
	go watcher.Run()
	go func() {
		<-ctx.Done()
		if err := watcher.Close(); err != nil {
			logging.Warn().Err(err).Msg("config watcher close failed")
		}
	}()

	logging.Info().
		Str("bind_addr", cfg.HTTP.BindAddr).
		Str("root_dir", cfg.Runtime.RootDir).
		Str("service", cfg.Discovery.ServiceName).
		Msg("supervisor tree starting")

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("ohx-core stopped")
}

// ensureRootDir verifies rootDir exists, creating it when createIfMissing is
// set (Runtime.CreateRoot), matching the original's create_root_directory
// startup check.
func ensureRootDir(rootDir string, createIfMissing bool) error {
	info, err := os.Stat(rootDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("root path %s is not a directory", rootDir)
		}
		return nil
	case os.IsNotExist(err):
		if !createIfMissing {
			return fmt.Errorf("root directory %s does not exist (set runtime.create_root to create it)", rootDir)
		}
		return os.MkdirAll(rootDir, 0o755)
	default:
		return fmt.Errorf("stat root directory %s: %w", rootDir, err)
	}
}
