// SPDX-License-Identifier: AGPL-3.0-or-later

package jwks

import (
	"context"
	"time"

	"github.com/ohx-project/ohx-core/internal/logging"
)

// RetryDelay is how long the cycle loop sleeps after a failed Ensure call
// before retrying (spec.md §4.3, §5).
const RetryDelay = 5 * time.Minute

// CycleLoop is the C6 long-running task: it repeatedly calls Ensure and
// sleeps until the next self-check instant, or retries after failure.
// Implements suture.Service.
type CycleLoop struct {
	authority *Authority
}

// NewCycleLoop builds a CycleLoop driving authority.
func NewCycleLoop(authority *Authority) *CycleLoop {
	return &CycleLoop{authority: authority}
}

// Serve runs the cycle loop until ctx is canceled.
func (l *CycleLoop) Serve(ctx context.Context) error {
	log := logging.WithComponent("jwks.cycle_loop")

	for {
		nextCheck, err := l.authority.Ensure()
		delay := RetryDelay
		if err != nil {
			log.Error().Err(err).Msg("jwks ensure failed, retrying")
		} else {
			if d := time.Until(nextCheck); d > 0 {
				delay = d
			} else {
				delay = 0
			}
			log.Info().Time("next_check", nextCheck).Msg("jwks ensure succeeded")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
