package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest pins the SHA-256 of every policy file plus the policy version
// that is active. A policy file is never read without a matching manifest
// entry; a missing or mismatched hash is an integrity failure, not a
// degraded mode.
type Manifest struct {
	ActivePolicyVersion string            `json:"activePolicyVersion"`
	Hashes              map[string]string `json:"hashes"`
}

// DefaultManifestPath returns ~/.trustplane/policy-hashes.json.
func DefaultManifestPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "policy-hashes.json"
	}
	return filepath.Join(home, ".trustplane", "policy-hashes.json")
}

// LoadManifest reads the policy-hash manifest. A missing or malformed
// manifest is fatal: integrity checks cannot proceed without one.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: hash manifest missing, integrity checks cannot proceed: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("policy: parse hash manifest: %w", err)
	}
	if m.ActivePolicyVersion == "" || m.Hashes == nil {
		return nil, fmt.Errorf("policy: hash manifest is malformed")
	}
	return &m, nil
}

// VerifyFile checks one policy file against its manifest entry. Entries
// are keyed by the slash-normalized path.
func (m *Manifest) VerifyFile(path string) error {
	key := filepath.ToSlash(path)
	expected, ok := m.Hashes[key]
	if !ok {
		return fmt.Errorf("policy: hash missing for %s, integrity checks failed", key)
	}
	actual, err := hashPolicyFile(path)
	if err != nil {
		return fmt.Errorf("policy: %s unreadable, integrity checks failed: %w", key, err)
	}
	if actual != expected {
		return fmt.Errorf("policy: hash mismatch for %s, integrity checks failed", key)
	}
	return nil
}

// AssertActiveVersion requires policyVersion to be the pinned active one.
func (m *Manifest) AssertActiveVersion(policyVersion string) error {
	if m.ActivePolicyVersion != policyVersion {
		return fmt.Errorf("policy: version mismatch, expected %s got %s", m.ActivePolicyVersion, policyVersion)
	}
	return nil
}

// WriteManifest pins the given policy files at their current content and
// writes the manifest atomically.
func WriteManifest(path, activeVersion string, policyFiles []string) (*Manifest, error) {
	m := &Manifest{
		ActivePolicyVersion: activeVersion,
		Hashes:              make(map[string]string, len(policyFiles)),
	}
	for _, pf := range policyFiles {
		sum, err := hashPolicyFile(pf)
		if err != nil {
			return nil, fmt.Errorf("policy: pin %s: %w", pf, err)
		}
		m.Hashes[filepath.ToSlash(pf)] = sum
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("policy: encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("policy: create manifest dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return nil, fmt.Errorf("policy: write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("policy: write manifest: %w", err)
	}
	return m, nil
}

// LoadVerified loads profiles only after the manifest check passes.
func LoadVerified(path string, m *Manifest) (*Store, error) {
	if err := m.VerifyFile(path); err != nil {
		return nil, err
	}
	return Load(path)
}

func hashPolicyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
