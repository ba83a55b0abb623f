// SPDX-License-Identifier: AGPL-3.0-or-later

package jwks

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ohx-project/ohx-core/internal/pathutil"
)

// StartupTokenTTL is the lifetime of a bootstrap access token issued at
// daemon startup (original_source/auth/src/create_system_auth_key.rs doc
// comment; supplemented feature, see SPEC_FULL.md §10.2).
const StartupTokenTTL = 5 * time.Minute

// IssueStartupTokens clears rootDir's startup directory and writes one
// short-lived bootstrap JWT per service name, signed with the currently
// active JWK, to startup/<service>.token (spec.md §6 names the path; this
// is the operation that populates it).
func (a *Authority) IssueStartupTokens(rootDir string, serviceNames []string) error {
	set, err := a.load()
	if err != nil {
		return err
	}
	latest, ok := latestOf(set.Keys)
	if !ok {
		return fmt.Errorf("jwks: issue startup tokens: no active key")
	}

	keyPath := a.layout.PrivateKeyFile(latest.KeyID)
	der, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("jwks: read active private key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return fmt.Errorf("jwks: parse active private key: %w", err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("jwks: active private key is not ECDSA")
	}

	dir := pathutil.StartupTokenDir(rootDir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("jwks: clear startup token dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jwks: create startup token dir: %w", err)
	}

	now := a.now()
	for _, service := range serviceNames {
		claims := jwt.RegisteredClaims{
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StartupTokenTTL)),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
		token.Header["kid"] = latest.KeyID
		signed, err := token.SignedString(priv)
		if err != nil {
			return fmt.Errorf("jwks: sign startup token for %s: %w", service, err)
		}
		if err := os.WriteFile(pathutil.StartupTokenFile(rootDir, service), []byte(signed), 0o600); err != nil {
			return fmt.Errorf("jwks: write startup token for %s: %w", service, err)
		}
	}
	return nil
}
