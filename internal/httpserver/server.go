// SPDX-License-Identifier: AGPL-3.0-or-later

package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohx-project/ohx-core/internal/jwtauth"
	"github.com/ohx-project/ohx-core/internal/logging"
	"github.com/ohx-project/ohx-core/internal/pathutil"
	"github.com/ohx-project/ohx-core/internal/redirect"
)

// ShutdownGrace bounds how long an outgoing server generation is given to
// drain in-flight requests before the next generation binds, or before the
// process exits.
const ShutdownGrace = 10 * time.Second

// Server is the C11 restartable TLS HTTP server core. At most one server
// generation is ever bound at a time; RequestRestart tears the current
// generation down and binds a fresh one built from the latest redirect
// table, default UI target, and on-disk certificate.
type Server struct {
	RootDir   string
	BindAddr  string
	Layout    pathutil.Layout
	Redirects *redirect.Table
	Verifier  *jwtauth.Verifier
	ServiceID string
	Version   string

	defaultUI atomic.Pointer[string]
	shutdown  atomic.Bool
	restartCh chan struct{}
}

// NewServer builds a Server. addr is the TLS bind address (host:port).
func NewServer(rootDir, addr string, layout pathutil.Layout, redirects *redirect.Table, verifier *jwtauth.Verifier, serviceID, version string) *Server {
	return &Server{
		RootDir:   rootDir,
		BindAddr:  addr,
		Layout:    layout,
		Redirects: redirects,
		Verifier:  verifier,
		ServiceID: serviceID,
		Version:   version,
		restartCh: make(chan struct{}, 1),
	}
}

// RequestRestart asks the current server generation to drain and a fresh
// one to bind in its place. It is non-blocking: a restart already queued
// coalesces with this one (spec.md §4.8's "mpsc channel of capacity 1").
func (s *Server) RequestRestart() {
	select {
	case s.restartCh <- struct{}{}:
	default:
	}
}

// RequestShutdown asks the current generation to drain and the Serve loop
// to exit instead of binding a new generation.
func (s *Server) RequestShutdown() {
	s.shutdown.Store(true)
	s.RequestRestart()
}

// SetDefaultUI validates that path names an existing index.html under the
// webui directory, then publishes it as the target of the "/" redirect and
// requests a restart so the new route takes effect (spec.md §4.8, "GET /
// redirects to the default UI").
func (s *Server) SetDefaultUI(path string) error {
	full := filepath.Join(pathutil.WebUIDir(s.RootDir), path, "index.html")
	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("httpserver: set default ui: %w", err)
	}
	s.defaultUI.Store(&path)
	s.RequestRestart()
	return nil
}

func (s *Server) currentDefaultUI() string {
	p := s.defaultUI.Load()
	if p == nil {
		return ""
	}
	return *p
}

// Serve runs the restart loop until ctx is canceled or RequestShutdown is
// called. It implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	log := logging.WithComponent("httpserver")

	for {
		gen := generation{
			rootDir:   s.RootDir,
			redirects: s.Redirects.Snapshot(),
			defaultUI: s.currentDefaultUI(),
			verifier:  s.Verifier,
			serviceID: s.ServiceID,
			version:   s.Version,
		}

		tlsCert, err := tls.LoadX509KeyPair(s.Layout.HTTPCertPEM(), s.Layout.HTTPKeyPEM())
		if err != nil {
			return fmt.Errorf("httpserver: load certificate: %w", err)
		}

		srv := &http.Server{
			Addr:      s.BindAddr,
			Handler:   newRouter(gen),
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{tlsCert}, MinVersion: tls.VersionTLS12},
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.ListenAndServeTLS("", "")
		}()

		log.Info().Str("addr", s.BindAddr).Msg("server generation bound")

		select {
		case <-ctx.Done():
			s.shutdownServer(srv, log)
			return ctx.Err()
		case <-s.restartCh:
			s.shutdownServer(srv, log)
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("server generation exited")
				return fmt.Errorf("httpserver: serve: %w", err)
			}
		}

		if s.shutdown.Load() {
			return nil
		}
	}
}

func (s *Server) shutdownServer(srv *http.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server generation did not drain cleanly")
	}
}
