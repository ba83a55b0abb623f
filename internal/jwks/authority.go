// SPDX-License-Identifier: AGPL-3.0-or-later

package jwks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ohx-project/ohx-core/internal/pathutil"
)

// ErrKeyIDCollision is returned when two keys would be minted within the
// same millisecond (spec.md §3: "concurrent creation within a single
// millisecond is forbidden").
var ErrKeyIDCollision = errors.New("jwks: key id collision")

// selfVerifyClaims is the fixed claim set used for self-verification
// (spec.md §4.2: "synthesize a fixed test claim set").
type selfVerifyClaims struct {
	jwt.RegisteredClaims
}

const selfVerifySubject = "ohx-jwks-self-verify"

// Authority is the system JWT authority (C5): it owns one JWKS file and the
// private-key files backing it, rooted at a single certs directory.
type Authority struct {
	layout pathutil.Layout
	now    func() time.Time
}

// NewAuthority returns an Authority rooted at certsDir.
func NewAuthority(certsDir string) *Authority {
	return &Authority{layout: pathutil.NewLayout(certsDir), now: time.Now}
}

// Ensure implements the ensure(cert_dir) operation of spec.md §4.2: load,
// evict, mint if needed, persist, and return the next self-check instant.
func (a *Authority) Ensure() (nextCheck time.Time, err error) {
	if err := os.MkdirAll(a.layout.CertsDir, 0o755); err != nil {
		return time.Time{}, fmt.Errorf("jwks: create certs dir: %w", err)
	}

	set, err := a.load()
	if err != nil {
		return time.Time{}, err
	}

	now := a.now()
	kept := make([]JWK, 0, len(set.Keys))
	for _, k := range set.Keys {
		usable, verr := a.isUsable(k)
		if verr != nil {
			return time.Time{}, verr
		}
		if k.Expire.Before(now.Add(-SwapKeyTime)) || !usable {
			if err := os.Remove(a.layout.PrivateKeyFile(k.KeyID)); err != nil && !os.IsNotExist(err) {
				return time.Time{}, fmt.Errorf("jwks: remove evicted key file: %w", err)
			}
			continue
		}
		kept = append(kept, k)
	}

	latest, hasLatest := latestOf(kept)
	if !hasLatest || latest.Expire.Sub(now) <= OverlapTime {
		minted, err := a.mint(now, kept)
		if err != nil {
			return time.Time{}, err
		}
		kept = append(kept, minted)
		latest = minted
	}

	if err := a.save(Set{Keys: kept}); err != nil {
		return time.Time{}, err
	}

	return latest.Expire.Add(-OverlapTime), nil
}

// latestOf returns the entry with the maximum Expire. Ties are
// implementation-defined (spec.md §4.2): the first one encountered wins.
func latestOf(keys []JWK) (JWK, bool) {
	var latest JWK
	found := false
	for _, k := range keys {
		if !found || k.Expire.After(latest.Expire) {
			latest = k
			found = true
		}
	}
	return latest, found
}

// mint generates a new P-256 keypair, persists the private key, and
// returns the public JWK with expire = now + SwapKeyTime.
func (a *Authority) mint(now time.Time, existing []JWK) (JWK, error) {
	keyID := strconv.FormatInt(now.UnixMilli(), 10)
	for _, k := range existing {
		if k.KeyID == keyID {
			return JWK{}, ErrKeyIDCollision
		}
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return JWK{}, fmt.Errorf("jwks: generate key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return JWK{}, fmt.Errorf("jwks: marshal private key: %w", err)
	}
	if err := writeAtomic(a.layout.PrivateKeyFile(keyID), der); err != nil {
		return JWK{}, err
	}

	return JWK{
		JSONWebKey: jose.JSONWebKey{
			Key:       &priv.PublicKey,
			KeyID:     keyID,
			Algorithm: Algorithm,
			Use:       "sig",
		},
		Expire: now.Add(SwapKeyTime),
	}, nil
}

// isUsable performs the self-verification check of spec.md §4.2: sign a
// fixed claim set with the on-disk private key, verify with the JWK's
// public half. A missing private-key file is treated as unusable rather
// than an aborting I/O error (see DESIGN.md Open Question decision).
func (a *Authority) isUsable(k JWK) (bool, error) {
	if k.Algorithm != Algorithm {
		return false, nil
	}

	keyPath := a.layout.PrivateKeyFile(k.KeyID)
	if _, err := os.Stat(keyPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("jwks: stat private key %s: %w", keyPath, err)
	}

	der, err := os.ReadFile(keyPath)
	if err != nil {
		return false, fmt.Errorf("jwks: read private key %s: %w", keyPath, err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return false, fmt.Errorf("jwks: parse private key %s: %w", keyPath, err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return false, nil
	}

	pub, ok := k.Key.(*ecdsa.PublicKey)
	if !ok {
		return false, nil
	}

	claims := selfVerifyClaims{jwt.RegisteredClaims{
		Subject:   selfVerifySubject,
		ExpiresAt: jwt.NewNumericDate(a.now().Add(time.Minute)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = k.KeyID
	signed, err := token.SignedString(priv)
	if err != nil {
		return false, fmt.Errorf("jwks: self-sign: %w", err)
	}

	parsedToken, err := jwt.ParseWithClaims(signed, &selfVerifyClaims{}, func(t *jwt.Token) (interface{}, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil || !parsedToken.Valid {
		return false, nil
	}

	return true, nil
}

// load reads the persisted JWKS file, treating a missing file as empty.
func (a *Authority) load() (Set, error) {
	data, err := os.ReadFile(a.layout.JWKSFile())
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return Set{}, fmt.Errorf("jwks: read jwks file: %w", err)
	}
	return decodeSet(data)
}

// save persists the JWKS file atomically.
func (a *Authority) save(s Set) error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	return writeAtomic(a.layout.JWKSFile(), data)
}

// writeAtomic writes data via a temp file then renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("jwks: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("jwks: rename %s: %w", path, err)
	}
	return nil
}

// PublicSet loads the current JWKS, for serving over HTTP / handing to the
// jwtauth verifier.
func (a *Authority) PublicSet() (Set, error) {
	return a.load()
}
