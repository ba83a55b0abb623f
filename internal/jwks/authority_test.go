// SPDX-License-Identifier: AGPL-3.0-or-later

package jwks

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureFreshStart(t *testing.T) {
	dir := t.TempDir()
	a := NewAuthority(dir)

	nextCheck, err := a.Ensure()
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	set, err := a.PublicSet()
	if err != nil {
		t.Fatalf("PublicSet() error = %v", err)
	}
	if len(set.Keys) != 1 {
		t.Fatalf("len(set.Keys) = %d, want 1", len(set.Keys))
	}

	k := set.Keys[0]
	if want := time.Now().Add(SwapKeyTime); k.Expire.Sub(want).Abs() > time.Minute {
		t.Errorf("key expire = %v, want ~%v", k.Expire, want)
	}
	if want := k.Expire.Add(-OverlapTime); nextCheck.Sub(want).Abs() > time.Second {
		t.Errorf("nextCheck = %v, want %v", nextCheck, want)
	}

	if _, err := os.Stat(filepath.Join(dir, "ohx_system_key_"+k.KeyID+".der")); err != nil {
		t.Errorf("expected private key file: %v", err)
	}
}

func TestEnsureRotatesNearExpiry(t *testing.T) {
	dir := t.TempDir()
	a := NewAuthority(dir)
	base := time.Now()

	// Seed a single key 36h from expiry, below the 48h overlap threshold.
	a.now = func() time.Time { return base.Add(-(SwapKeyTime - 36*time.Hour)) }
	if _, err := a.Ensure(); err != nil {
		t.Fatalf("seed Ensure() error = %v", err)
	}

	a.now = func() time.Time { return base }
	if _, err := a.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	set, err := a.PublicSet()
	if err != nil {
		t.Fatalf("PublicSet() error = %v", err)
	}
	if len(set.Keys) != 2 {
		t.Fatalf("len(set.Keys) = %d, want 2 (rotation should append, not replace)", len(set.Keys))
	}
}

func TestEnsureEvictsExpiredKey(t *testing.T) {
	dir := t.TempDir()
	a := NewAuthority(dir)
	base := time.Now()

	// Seed a key whose expire will be 8 days in the past relative to base.
	a.now = func() time.Time { return base.Add(-SwapKeyTime - 8*24*time.Hour) }
	if _, err := a.Ensure(); err != nil {
		t.Fatalf("seed Ensure() error = %v", err)
	}
	seeded, err := a.PublicSet()
	if err != nil {
		t.Fatalf("PublicSet() error = %v", err)
	}
	staleKeyID := seeded.Keys[0].KeyID
	staleKeyPath := filepath.Join(dir, "ohx_system_key_"+staleKeyID+".der")

	a.now = func() time.Time { return base }
	if _, err := a.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	set, err := a.PublicSet()
	if err != nil {
		t.Fatalf("PublicSet() error = %v", err)
	}
	for _, k := range set.Keys {
		if k.KeyID == staleKeyID {
			t.Fatalf("expected stale key %s to be evicted", staleKeyID)
		}
	}
	if _, err := os.Stat(staleKeyPath); !os.IsNotExist(err) {
		t.Errorf("expected stale key file to be removed, stat err = %v", err)
	}
}

func TestEnsureInvariantLatestKeyOutlivesOverlap(t *testing.T) {
	dir := t.TempDir()
	a := NewAuthority(dir)

	if _, err := a.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	set, err := a.PublicSet()
	if err != nil {
		t.Fatalf("PublicSet() error = %v", err)
	}
	latest, ok := latestOf(set.Keys)
	if !ok {
		t.Fatal("expected a latest key")
	}
	if remaining := time.Until(latest.Expire); remaining <= OverlapTime {
		t.Errorf("latest remaining lifetime = %v, want > %v", remaining, OverlapTime)
	}
}

func TestIsUsableRejectsMissingPrivateKeyFile(t *testing.T) {
	dir := t.TempDir()
	a := NewAuthority(dir)

	if _, err := a.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	set, err := a.PublicSet()
	if err != nil {
		t.Fatalf("PublicSet() error = %v", err)
	}
	k := set.Keys[0]

	if err := os.Remove(filepath.Join(dir, "ohx_system_key_"+k.KeyID+".der")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	usable, err := a.isUsable(k)
	if err != nil {
		t.Fatalf("isUsable() error = %v, want nil (missing file is not an I/O abort)", err)
	}
	if usable {
		t.Error("isUsable() = true, want false for missing private key file")
	}
}

func TestJWKRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := NewAuthority(dir)
	if _, err := a.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ohx_system.jwks"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	set, err := decodeSet(data)
	if err != nil {
		t.Fatalf("decodeSet() error = %v", err)
	}
	if len(set.Keys) != 1 {
		t.Fatalf("len(set.Keys) = %d, want 1", len(set.Keys))
	}
}

func TestDecodeSetEmptyIsNotError(t *testing.T) {
	set, err := decodeSet(nil)
	if err != nil {
		t.Fatalf("decodeSet(nil) error = %v", err)
	}
	if len(set.Keys) != 0 {
		t.Errorf("len(set.Keys) = %d, want 0", len(set.Keys))
	}
}
