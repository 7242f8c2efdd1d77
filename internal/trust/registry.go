// Package trust resolves mTLS certificate fingerprints to provisioned
// service identities. Registry contents are identity data provisioned at
// certificate issuance, never computed at runtime. Revocation is checked
// before lookup and is permanent for the life of the process.
package trust

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ServiceCertificateClaims is the identity bound to a certificate fingerprint.
type ServiceCertificateClaims struct {
	ServiceName string `yaml:"service_name" json:"serviceName"`
	OU          string `yaml:"ou" json:"ou"`
	Env         string `yaml:"env" json:"env"`
	Fingerprint string `yaml:"fingerprint" json:"fingerprint"`
}

// Registry maps lowercase hex SHA-256 fingerprints to service claims.
// Reads dominate; revocation is the only runtime mutation.
type Registry struct {
	env     string
	mu      sync.RWMutex
	entries map[string]ServiceCertificateClaims
	revoked map[string]bool
}

// NewRegistry creates a Registry for the given environment.
// Claims whose env does not match are dropped at load: a certificate
// provisioned for another environment never resolves here.
func NewRegistry(env string, claims []ServiceCertificateClaims) *Registry {
	r := &Registry{
		env:     env,
		entries: make(map[string]ServiceCertificateClaims, len(claims)),
		revoked: make(map[string]bool),
	}
	for _, c := range claims {
		if c.Env != env {
			continue
		}
		c.Fingerprint = NormalizeFingerprint(c.Fingerprint)
		if c.Fingerprint == "" {
			continue
		}
		r.entries[c.Fingerprint] = c
	}
	return r
}

// registryFile is the YAML shape of a provisioned registry.
type registryFile struct {
	Env      string                     `yaml:"env"`
	Services []ServiceCertificateClaims `yaml:"services"`
	Revoked  []string                   `yaml:"revoked,omitempty"`
}

// Load reads a provisioned registry from a YAML file.
// Empty path falls back to ~/.trustplane/registry.yaml. A missing file
// yields an empty registry (nothing resolves; fail closed).
func Load(path, env string) (*Registry, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewRegistry(env, nil), nil
		}
		path = filepath.Join(home, ".trustplane", "registry.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(env, nil), nil
		}
		return nil, fmt.Errorf("trust: read registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("trust: parse registry: %w", err)
	}
	if file.Env != "" && file.Env != env {
		return nil, fmt.Errorf("trust: registry file is for env %q, running env is %q", file.Env, env)
	}

	r := NewRegistry(env, file.Services)
	for _, fp := range file.Revoked {
		r.Revoke(fp)
	}
	return r, nil
}

// AppendRevocation adds a fingerprint to the revoked list of a registry
// file on disk, so the revocation survives restarts. Idempotent.
func AppendRevocation(path, fingerprint string) error {
	fp := NormalizeFingerprint(fingerprint)
	if fp == "" {
		return fmt.Errorf("trust: empty fingerprint")
	}

	var file registryFile
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("trust: read registry: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("trust: parse registry: %w", err)
		}
	}

	for _, existing := range file.Revoked {
		if NormalizeFingerprint(existing) == fp {
			return nil
		}
	}
	file.Revoked = append(file.Revoked, fp)

	out, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("trust: encode registry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0600); err != nil {
		return fmt.Errorf("trust: write registry: %w", err)
	}
	return os.Rename(tmp, path)
}

// Resolve returns the claims for a fingerprint, or ok=false when the
// fingerprint is unknown or revoked. Revocation wins over registration.
func (r *Registry) Resolve(fingerprint string) (ServiceCertificateClaims, bool) {
	fp := NormalizeFingerprint(fingerprint)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.revoked[fp] {
		return ServiceCertificateClaims{}, false
	}
	claims, ok := r.entries[fp]
	return claims, ok
}

// Revoke marks a fingerprint revoked. Idempotent, and irreversible within
// the running process: un-revocation requires a registry reload at redeploy.
func (r *Registry) Revoke(fingerprint string) {
	fp := NormalizeFingerprint(fingerprint)
	if fp == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[fp] = true
}

// IsRevoked reports whether a fingerprint is on the revocation set.
func (r *Registry) IsRevoked(fingerprint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revoked[NormalizeFingerprint(fingerprint)]
}

// List returns all registered claims, revoked ones included. Order is not
// specified. Intended for operator inspection, not authorization.
func (r *Registry) List() []ServiceCertificateClaims {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceCertificateClaims, 0, len(r.entries))
	for _, c := range r.entries {
		out = append(out, c)
	}
	return out
}

// Env returns the environment this registry was constructed for.
func (r *Registry) Env() string {
	return r.env
}

// NormalizeFingerprint lowercases and trims a fingerprint string.
// The registry key space is lowercase hex.
func NormalizeFingerprint(fp string) string {
	return strings.ToLower(strings.TrimSpace(fp))
}
