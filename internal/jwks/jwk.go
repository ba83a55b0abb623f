// SPDX-License-Identifier: AGPL-3.0-or-later

// Package jwks implements the system JWT authority: generation, rotation,
// and overlap-window replacement of the EC-P256 signing keys used to mint
// access tokens, and self-verification of every stored private key against
// its published public counterpart.
//
// Grounded on original_source/auth/src/create_system_auth_key.rs (see
// DESIGN.md for the eviction-loop and missing-key-file Open Question
// decisions).
package jwks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	// SwapKeyTime is the lifetime of a freshly minted JWK (spec.md §4.2).
	SwapKeyTime = 7 * 24 * time.Hour

	// OverlapTime is how far ahead of expiry a new key is minted, and the
	// margin the self-check instant leaves before the active key expires.
	OverlapTime = 2 * 24 * time.Hour

	// Algorithm is the only signing algorithm this authority mints.
	Algorithm = "ES256"
)

// JWK is an EC-P256 JSON Web Key plus the non-standard "expire" field this
// authority tracks alongside it (spec.md §3). It wraps go-jose's
// JSONWebKey, which implements the RFC 7517 JSON shape, and folds the
// extra field into the same object on marshal/unmarshal.
type JWK struct {
	jose.JSONWebKey
	Expire time.Time
}

// MarshalJSON emits the standard JWK fields plus "expire" as RFC 3339, per
// spec.md §6 ("an additional.expire field").
func (k JWK) MarshalJSON() ([]byte, error) {
	base, err := k.JSONWebKey.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("jwks: marshal jwk: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, fmt.Errorf("jwks: decode jwk for expire injection: %w", err)
	}

	expireJSON, err := json.Marshal(k.Expire.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("jwks: marshal expire: %w", err)
	}
	fields["expire"] = expireJSON

	return json.Marshal(fields)
}

// UnmarshalJSON reverses MarshalJSON: it pulls "expire" out before handing
// the rest to go-jose's JWK unmarshaler.
func (k *JWK) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("jwks: decode jwk: %w", err)
	}

	expireRaw, ok := fields["expire"]
	if !ok {
		return fmt.Errorf("jwks: jwk missing expire field")
	}
	var expireStr string
	if err := json.Unmarshal(expireRaw, &expireStr); err != nil {
		return fmt.Errorf("jwks: decode expire: %w", err)
	}
	expire, err := time.Parse(time.RFC3339, expireStr)
	if err != nil {
		return fmt.Errorf("jwks: parse expire: %w", err)
	}
	delete(fields, "expire")

	rest, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("jwks: re-marshal jwk fields: %w", err)
	}

	var raw jose.JSONWebKey
	if err := raw.UnmarshalJSON(rest); err != nil {
		return fmt.Errorf("jwks: unmarshal jwk: %w", err)
	}

	k.JSONWebKey = raw
	k.Expire = expire
	return nil
}

// Set is the persisted JWKS document: an ordered list of JWKs written as
// pretty-printed JSON, per spec.md §6.
type Set struct {
	Keys []JWK `json:"keys"`
}

// encode renders the set as pretty-printed JSON (RFC 7517 file format).
func (s Set) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("jwks: encode set: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSet parses a persisted JWKS document. An empty byte slice yields an
// empty Set rather than an error (spec.md §8: "A JWKS file with zero keys
// is equivalent to a missing file").
func decodeSet(data []byte) (Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Set{}, nil
	}
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return Set{}, fmt.Errorf("jwks: decode set: %w", err)
	}
	return s, nil
}
