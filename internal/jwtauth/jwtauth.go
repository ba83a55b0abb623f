// SPDX-License-Identifier: AGPL-3.0-or-later

// Package jwtauth provides the bearer-JWT verification middleware guarding
// every HTTP endpoint except "/", "/ohx", and "/webui" (spec.md §4.8).
// Tokens are verified against this daemon's own system JWKS rather than an
// external identity provider, so the cache holds ECDSA public keys loaded
// straight from internal/jwks instead of fetched over HTTP.
//
// Grounded on the teacher's internal/auth/jwks_cache.go (TTL-gated cache,
// refresh-on-miss, stale-cache-on-refresh-failure) and
// internal/auth/middleware.go (Authorization header / cookie extraction),
// adapted from RSA-over-HTTP to the local ES256 authority.
package jwtauth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ohx-project/ohx-core/internal/jwks"
	"github.com/ohx-project/ohx-core/internal/logging"
)

type contextKey string

// ClaimsContextKey is the request-context key under which verified claims
// are stored.
const ClaimsContextKey contextKey = "jwtauth.claims"

// CacheTTL bounds how long a looked-up public key is trusted before the
// verifier re-reads the JWKS file. It is shorter than SwapKeyTime/OverlapTime
// so a rotation or eviction is picked up promptly without re-reading on
// every request.
const CacheTTL = 30 * time.Second

// Claims is the registered-claims shape every token this authority mints
// carries; callers needing a custom claim should type-assert the context
// value's jwt.RegisteredClaims fields directly.
type Claims = jwt.RegisteredClaims

// PathPrefixAllowlist is the set of path prefixes the spec exempts from
// authentication (spec.md §4.8, §6): "/" matches only the root index, while
// "/ohx" and "/webui" exempt their entire subtree, since the default-UI
// bootstrap (router.go's "/" -> "/webui/<ui>/index.html" redirect) and every
// webui static asset live under "/webui/...". Matches the original's
// warp::path("webui").and(warp::fs::dir(...)) prefix filter
// (original_source/core/src/http/service.rs).
var PathPrefixAllowlist = []string{
	"/ohx",
	"/webui",
}

// Verifier validates bearer JWTs against a jwks.Authority's current public
// key set, caching the parsed ECDSA keys for CacheTTL.
type Verifier struct {
	authority *jwks.Authority

	mu        sync.RWMutex
	keys      map[string]*ecdsa.PublicKey
	fetchedAt time.Time
}

// NewVerifier builds a Verifier reading from authority.
func NewVerifier(authority *jwks.Authority) *Verifier {
	return &Verifier{authority: authority, keys: make(map[string]*ecdsa.PublicKey)}
}

// publicKey resolves kid to an ECDSA public key, refreshing the cache when
// stale or on a cache miss.
func (v *Verifier) publicKey(kid string) (*ecdsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	stale := time.Since(v.fetchedAt) > CacheTTL
	v.mu.RUnlock()

	if ok && !stale {
		return key, nil
	}

	refreshed, err := v.refresh(kid)
	if err != nil {
		if ok {
			return key, nil
		}
		return nil, err
	}

	key, ok = refreshed[kid]
	if !ok {
		return nil, fmt.Errorf("jwtauth: unknown key id %q", kid)
	}
	return key, nil
}

func (v *Verifier) refresh(kid string) (map[string]*ecdsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock; reuse
	// its result only if it already holds kid, so a miss always re-reads.
	if _, hit := v.keys[kid]; hit && time.Since(v.fetchedAt) < CacheTTL {
		return v.keys, nil
	}

	set, err := v.authority.PublicSet()
	if err != nil {
		return nil, fmt.Errorf("jwtauth: load jwks: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		pub, ok := k.Key.(*ecdsa.PublicKey)
		if !ok {
			continue
		}
		keys[k.KeyID] = pub
	}

	v.keys = keys
	v.fetchedAt = time.Now()
	return keys, nil
}

// Verify parses and validates tokenString, returning its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("jwtauth: token missing kid header")
		}
		return v.publicKey(kid)
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, fmt.Errorf("jwtauth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("jwtauth: invalid token")
	}
	return claims, nil
}

// Middleware enforces bearer-JWT authentication on every path not exempted
// by isAllowlisted. It is written as chi-style http.Handler middleware so it
// composes with chi's r.Use().
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAllowlisted(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			logging.WithComponent("jwtauth").Debug().Err(err).Msg("token rejected")
			http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isAllowlisted reports whether path is exempt from authentication: the bare
// root, or anything under one of PathPrefixAllowlist's subtrees.
func isAllowlisted(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range PathPrefixAllowlist {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("unauthorized: missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("unauthorized: invalid authorization header")
	}
	return parts[1], nil
}

// ClaimsFromContext extracts verified claims set by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}
