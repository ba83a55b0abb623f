// SPDX-License-Identifier: AGPL-3.0-or-later

package discovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeResolver counts calls and returns a scripted sequence of results.
type fakeResolver struct {
	calls   int64
	results []ResolveResult
}

func (f *fakeResolver) Resolve(_ context.Context, _ ResolveRequest) (ResolveResult, error) {
	i := atomic.AddInt64(&f.calls, 1) - 1
	if int(i) >= len(f.results) {
		return f.results[len(f.results)-1], nil
	}
	return f.results[i], nil
}

func TestRegistryCachesNegativeOutcome(t *testing.T) {
	fr := &fakeResolver{results: []ResolveResult{{Outcome: OutcomeTimeout}}}
	reg := &Registry{resolver: fr, cache: make(map[cacheKey]cacheEntry)}

	req := ResolveRequest{ServiceName: "ruleengine", MinVersion: "1.0.0"}

	for i := 0; i < 3; i++ {
		res, err := reg.Resolve(context.Background(), req)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Outcome != OutcomeTimeout {
			t.Errorf("Outcome = %v, want OutcomeTimeout", res.Outcome)
		}
	}

	if got := atomic.LoadInt64(&fr.calls); got != 1 {
		t.Errorf("underlying resolver called %d times, want 1 (cached)", got)
	}
}

func TestRegistryRetriesAfterNegativeCacheExpiry(t *testing.T) {
	fr := &fakeResolver{results: []ResolveResult{
		{Outcome: OutcomeCapacityLimit},
		{Outcome: OutcomeSuccess, Service: ResolvedService{ServiceName: "ruleengine"}},
	}}
	reg := &Registry{resolver: fr, cache: make(map[cacheKey]cacheEntry)}
	req := ResolveRequest{ServiceName: "ruleengine", MinVersion: "1.0.0"}

	if _, err := reg.Resolve(context.Background(), req); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Force the cached negative entry to look expired.
	reg.mu.Lock()
	for k, v := range reg.cache {
		v.cachedAt = time.Now().Add(-NegativeCacheTTL - time.Second)
		reg.cache[k] = v
	}
	reg.mu.Unlock()

	res, err := reg.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %v, want OutcomeSuccess", res.Outcome)
	}
	if got := atomic.LoadInt64(&fr.calls); got != 2 {
		t.Errorf("underlying resolver called %d times, want 2", got)
	}
}

func TestRegistryInvalidateForcesRequery(t *testing.T) {
	fr := &fakeResolver{results: []ResolveResult{{Outcome: OutcomeTimeout}, {Outcome: OutcomeTimeout}}}
	reg := &Registry{resolver: fr, cache: make(map[cacheKey]cacheEntry)}
	req := ResolveRequest{ServiceName: "webui", MinVersion: "1.0.0"}

	if _, err := reg.Resolve(context.Background(), req); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	reg.Invalidate(req)
	if _, err := reg.Resolve(context.Background(), req); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := atomic.LoadInt64(&fr.calls); got != 2 {
		t.Errorf("underlying resolver called %d times, want 2 after invalidate", got)
	}
}

func TestIsChannelLive(t *testing.T) {
	if isChannelLive(nil) {
		t.Error("isChannelLive(nil) = true, want false")
	}
}
