// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clockgate blocks startup until the system clock looks sane.
//
// Devices that boot without a battery-backed RTC or network time come up
// believing it's 1970. Certificate and JWT validity windows computed
// against that clock are garbage, so every other subsystem in this daemon
// waits on clockgate before touching certs, keys, or tokens.
package clockgate

import (
	"context"
	"errors"
	"time"
)

// pollInterval is how often the clock is re-checked while waiting.
const pollInterval = 2 * time.Second

// epochYear is the year a clock reset to the Unix epoch reports.
const epochYear = 1970

// ErrClockUnknown is returned by CheckNow when the system clock still looks
// like it's reporting Unix-epoch time (spec.md §4.1, §7).
var ErrClockUnknown = errors.New("clockgate: system clock unknown")

// Wait blocks until time.Now() reports a year after 1970, or until ctx is
// canceled. It returns ctx.Err() on cancellation, nil once the clock looks
// sane.
func Wait(ctx context.Context, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	if now().Year() > epochYear {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if now().Year() > epochYear {
				return nil
			}
		}
	}
}

// Known reports whether now()'s year is plausible, without blocking.
func Known(now func() time.Time) bool {
	if now == nil {
		now = time.Now
	}
	return now().Year() > epochYear
}

// CheckNow is the non-blocking counterpart to Wait: it returns
// ErrClockUnknown immediately instead of polling when the clock still looks
// epoch-reset, for callers that want to fail fast rather than wait.
func CheckNow(now func() time.Time) error {
	if !Known(now) {
		return ErrClockUnknown
	}
	return nil
}
