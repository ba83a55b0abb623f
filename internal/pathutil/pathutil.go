// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pathutil centralizes the deterministic on-disk filenames used by
// the certificate manager, the JWKS authority, and the HTTP server core, so
// every package agrees on the filesystem layout in a single place.
package pathutil

import (
	"fmt"
	"path/filepath"
)

// Layout resolves paths rooted at a single certs directory (spec.md §6).
type Layout struct {
	CertsDir string
}

// NewLayout returns a Layout rooted at certsDir.
func NewLayout(certsDir string) Layout {
	return Layout{CertsDir: certsDir}
}

// HTTPCertPEM is the PEM-encoded server certificate.
func (l Layout) HTTPCertPEM() string { return filepath.Join(l.CertsDir, "https_cert.pem") }

// HTTPCertDER is the DER-encoded server certificate.
func (l Layout) HTTPCertDER() string { return filepath.Join(l.CertsDir, "https_cert.der") }

// HTTPKeyPEM is the PEM-encoded server private key.
func (l Layout) HTTPKeyPEM() string { return filepath.Join(l.CertsDir, "https_key.pem") }

// HTTPKeyDER is the DER-encoded (PKCS#8) server private key.
func (l Layout) HTTPKeyDER() string { return filepath.Join(l.CertsDir, "https_key.der") }

// JWKSFile is the persisted JSON Web Key Set.
func (l Layout) JWKSFile() string { return filepath.Join(l.CertsDir, "ohx_system.jwks") }

// PrivateKeyFile is the PKCS#8 DER document holding the private half of the
// JWK identified by keyID.
func (l Layout) PrivateKeyFile(keyID string) string {
	return filepath.Join(l.CertsDir, fmt.Sprintf("ohx_system_key_%s.der", keyID))
}

// ConfigFile builds the path for a stored configuration document:
// config/<service>/<schema>.<id>.json.
func ConfigFile(rootDir, service, schema, id string) string {
	return filepath.Join(rootDir, "config", service, fmt.Sprintf("%s.%s.json", schema, id))
}

// StartupTokenFile is where a bootstrap access token for serviceName is
// written on daemon startup.
func StartupTokenFile(rootDir, serviceName string) string {
	return filepath.Join(rootDir, "startup", fmt.Sprintf("%s.token", serviceName))
}

// WebUIDir, BackupsDir, RulesDir, ScriptsDir, InterconnectsDir and
// AddonsHTTPDir are the static directory mounts served by the HTTP core
// (spec.md §4.8, §6).
func WebUIDir(rootDir string) string          { return filepath.Join(rootDir, "webui") }
func BackupsDir(rootDir string) string        { return filepath.Join(rootDir, "backups") }
func RulesDir(rootDir string) string          { return filepath.Join(rootDir, "rules") }
func ScriptsDir(rootDir string) string        { return filepath.Join(rootDir, "scripts") }
func InterconnectsDir(rootDir string) string  { return filepath.Join(rootDir, "interconnects") }
func AddonsHTTPDir(rootDir string) string     { return filepath.Join(rootDir, "addons_http") }
func ConfigRootDir(rootDir string) string     { return filepath.Join(rootDir, "config") }
func StartupTokenDir(rootDir string) string   { return filepath.Join(rootDir, "startup") }
