// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shutdown fans a single OS interrupt out to every long-running
// task as one context cancellation, per spec.md §4.9/§5 ("Ctrl-C is
// translated into a single shutdown broadcast").
//
// Grounded on original_source/core/src/main.rs's ctrl-c handling task,
// reworked as context.Context cancellation -- the idiomatic Go
// replacement for a channel fanout tree.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyContext returns a context that is canceled when the process
// receives SIGINT or SIGTERM, and a stop function that releases the
// signal handler (mirrors signal.NotifyContext's contract).
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
