// SPDX-License-Identifier: AGPL-3.0-or-later

package pathutil

import (
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/var/lib/ohx/certs")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"cert pem", l.HTTPCertPEM(), "/var/lib/ohx/certs/https_cert.pem"},
		{"cert der", l.HTTPCertDER(), "/var/lib/ohx/certs/https_cert.der"},
		{"key pem", l.HTTPKeyPEM(), "/var/lib/ohx/certs/https_key.pem"},
		{"key der", l.HTTPKeyDER(), "/var/lib/ohx/certs/https_key.der"},
		{"jwks", l.JWKSFile(), "/var/lib/ohx/certs/ohx_system.jwks"},
		{"private key", l.PrivateKeyFile("12345"), "/var/lib/ohx/certs/ohx_system_key_12345.der"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	got := ConfigFile("/root", "ruleengine", "automation", "abc123")
	want := filepath.Join("/root", "config", "ruleengine", "automation.abc123.json")
	if got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestStartupTokenFile(t *testing.T) {
	got := StartupTokenFile("/root", "ruleengine")
	want := filepath.Join("/root", "startup", "ruleengine.token")
	if got != want {
		t.Errorf("StartupTokenFile() = %q, want %q", got, want)
	}
}
