// SPDX-License-Identifier: AGPL-3.0-or-later

// Package certs manages the self-signed TLS certificate every OHX daemon
// uses to accept connections: generation, persistence in both DER and PEM,
// and renewal once remaining validity drops below a threshold.
//
// Grounded on original_source/core/src/create_http_certificate.rs and
// original_source/core/src/certificates.rs (see DESIGN.md).
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ohx-project/ohx-core/internal/pathutil"
)

const (
	// Validity is the lifetime of a freshly minted certificate.
	Validity = 365 * 24 * time.Hour

	// RenewThreshold is the remaining-validity floor below which ensure
	// regenerates the certificate (spec.md §4.4, §3).
	RenewThreshold = 14 * 24 * time.Hour

	commonName   = "OHX Smarthome"
	organization = "OHX Community"
	orgUnit      = "ohx.local"
	country      = "DE"
)

// baseSANs are the mandatory DNS names every certificate carries; callers
// may append further names on top (spec.md §3 allows "additional names").
var baseSANs = []string{"ohx.local", "localhost"}

// Manager creates and renews the self-signed server certificate rooted at a
// single certs directory.
type Manager struct {
	layout pathutil.Layout
	now    func() time.Time
	sans   []string
}

// NewManager returns a Manager rooted at certsDir, advertising the given
// extra SANs in addition to the mandatory ohx.local/localhost pair.
func NewManager(certsDir string, extraSANs ...string) *Manager {
	return &Manager{
		layout: pathutil.NewLayout(certsDir),
		now:    time.Now,
		sans:   append(append([]string{}, baseSANs...), extraSANs...),
	}
}

// Ensure implements the ensure(cert_dir) operation of spec.md §4.4: it
// returns whether a new certificate was generated, and the remaining
// validity of whichever certificate is now on disk.
func (m *Manager) Ensure() (generated bool, remaining time.Duration, err error) {
	if err := os.MkdirAll(m.layout.CertsDir, 0o755); err != nil {
		return false, 0, fmt.Errorf("certs: create certs dir: %w", err)
	}

	if cert, ok := m.loadValid(); ok {
		remaining = time.Until(cert.NotAfter)
		if remaining > RenewThreshold {
			return false, remaining, nil
		}
	}

	if err := m.generate(); err != nil {
		return false, 0, err
	}
	return true, Validity, nil
}

// loadValid reads and parses the current certificate, reporting ok=false if
// it is missing or unparseable.
func (m *Manager) loadValid() (*x509.Certificate, bool) {
	der, err := os.ReadFile(m.layout.HTTPCertDER())
	if err != nil {
		return nil, false
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, false
	}
	return cert, true
}

// generate mints a fresh ECDSA P-256 self-signed certificate and persists
// it, plus its private key, as both DER and PEM.
func (m *Manager) generate() error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("certs: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return fmt.Errorf("certs: generate serial: %w", err)
	}

	notBefore := m.now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         commonName,
			Organization:       []string{organization},
			OrganizationalUnit: []string{orgUnit},
			Country:            []string{country},
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              m.sans,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return fmt.Errorf("certs: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("certs: marshal private key: %w", err)
	}

	if err := writeAtomic(m.layout.HTTPCertDER(), der); err != nil {
		return err
	}
	if err := writeAtomic(m.layout.HTTPCertPEM(), pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})); err != nil {
		return err
	}
	if err := writeAtomic(m.layout.HTTPKeyDER(), keyDER); err != nil {
		return err
	}
	if err := writeAtomic(m.layout.HTTPKeyPEM(), pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})); err != nil {
		return err
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory then
// renames it into place, so readers never observe a partial write
// (spec.md §5: "written atomically ... write-then-rename is recommended").
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("certs: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("certs: rename %s: %w", path, err)
	}
	return nil
}
