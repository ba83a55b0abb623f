// SPDX-License-Identifier: AGPL-3.0-or-later

package certs

import (
	"context"
	"fmt"
	"time"

	"github.com/ohx-project/ohx-core/internal/logging"
)

// Restarter is notified when the certificate on disk changes, so the HTTP
// server core can reload it (spec.md §4.4's "nudge HTTP server").
type Restarter interface {
	RequestRestart()
}

// RefreshLoop is the C4 refresh loop: it periodically calls Ensure and, on
// regeneration, asks the HTTP server to restart. It implements
// suture.Service so it can be supervised directly.
type RefreshLoop struct {
	mgr       *Manager
	restarter Restarter
}

// NewRefreshLoop builds a RefreshLoop for mgr, notifying restarter whenever
// the certificate is regenerated.
func NewRefreshLoop(mgr *Manager, restarter Restarter) *RefreshLoop {
	return &RefreshLoop{mgr: mgr, restarter: restarter}
}

// Serve runs the refresh loop until ctx is canceled. Per spec.md §4.4, a
// failure from Ensure is fail-closed: it is logged and the loop returns an
// error so the supervising tree can observe and restart it.
func (l *RefreshLoop) Serve(ctx context.Context) error {
	log := logging.WithComponent("certs.refresh_loop")

	for {
		generated, remaining, err := l.mgr.Ensure()
		if err != nil {
			log.Error().Err(err).Msg("certificate ensure failed")
			return fmt.Errorf("certs: refresh loop: %w", err)
		}

		if generated {
			log.Info().Dur("validity", remaining).Msg("certificate regenerated")
			if l.restarter != nil {
				l.restarter.RequestRestart()
			}
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
