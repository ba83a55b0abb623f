// SPDX-License-Identifier: AGPL-3.0-or-later

package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc/connectivity"

	"github.com/ohx-project/ohx-core/internal/logging"
)

// NegativeCacheTTL is how long a Timeout, CapacityLimit, or
// VersionMismatch outcome is cached before the registry will retry the
// multicast resolve (spec.md §4.5's "service registry cache").
const NegativeCacheTTL = 5 * time.Minute

type cacheKey struct {
	serviceName string
	minVersion  string
	maxVersion  string
}

type cacheEntry struct {
	result     ResolveResult
	cachedAt   time.Time
	isNegative bool
}

func (e cacheEntry) expired(now time.Time) bool {
	if !e.isNegative {
		return false
	}
	return now.Sub(e.cachedAt) >= NegativeCacheTTL
}

// serviceResolver is satisfied by *Resolver; narrowed to an interface so
// tests can substitute a fake without running the real multicast loop.
type serviceResolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error)
}

// Registry wraps a Resolver with a per-request-shape cache, so repeated
// lookups for the same service don't re-flood the multicast group on
// every call. A cached Success entry is reused for as long as its gRPC
// channel reports READY, IDLE or CONNECTING; a cached negative outcome (timeout,
// capacity limit, version mismatch) expires after NegativeCacheTTL.
type Registry struct {
	resolver serviceResolver

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewRegistry builds a Registry fronting resolver.
func NewRegistry(resolver *Resolver) *Registry {
	return &Registry{
		resolver: resolver,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// Resolve returns a cached result when one is live, otherwise delegates to
// the underlying Resolver and caches the outcome.
func (r *Registry) Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	key := cacheKey{serviceName: req.ServiceName, minVersion: req.MinVersion, maxVersion: req.MaxVersion}
	log := logging.WithComponent("discovery.registry")

	now := time.Now()
	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && !entry.expired(now) {
		if entry.isNegative {
			r.mu.Unlock()
			log.Debug().Str("service", req.ServiceName).Msg("returning cached negative outcome")
			return entry.result, nil
		}
		if live := isChannelLive(entry.result.Service.Conn); live {
			r.mu.Unlock()
			log.Debug().Str("service", req.ServiceName).Msg("returning cached live channel")
			return entry.result, nil
		}
	}
	r.mu.Unlock()

	result, err := r.resolver.Resolve(ctx, req)
	if err != nil && !errors.Is(err, ErrCapacityLimit) {
		return result, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{
		result:     result,
		cachedAt:   now,
		isNegative: result.Outcome != OutcomeSuccess,
	}
	r.mu.Unlock()

	return result, nil
}

// Invalidate drops any cached entry for the given request shape, forcing
// the next Resolve to re-query the multicast group.
func (r *Registry) Invalidate(req ResolveRequest) {
	key := cacheKey{serviceName: req.ServiceName, minVersion: req.MinVersion, maxVersion: req.MaxVersion}
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

// grpcConn is satisfied by *grpc.ClientConn; narrowed to an interface so
// tests can substitute a fake connection.
type grpcConn interface {
	GetState() connectivity.State
}

func isChannelLive(conn grpcConn) bool {
	if conn == nil {
		return false
	}
	switch conn.GetState() {
	case connectivity.Ready, connectivity.Idle, connectivity.Connecting:
		return true
	default:
		return false
	}
}
