// Package policy resolves sandbox exposure limits from policy profiles.
// Profiles never expand system capability; they apply externally adjustable
// limits to capability that already exists.
package policy

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Profile is a resolved policy profile keyed by policy version.
// Empty string limits and zero numeric limits mean "no limit".
type Profile struct {
	Name                     string            `yaml:"name" json:"name"`
	MaxTransactionAmount     string            `yaml:"max_transaction_amount" json:"maxTransactionAmount"`
	MaxTransactionsPerSecond int               `yaml:"max_transactions_per_second" json:"maxTransactionsPerSecond"`
	DailyAggregateLimit      string            `yaml:"daily_aggregate_limit" json:"dailyAggregateLimit"`
	AllowedMessageTypes      []string          `yaml:"allowed_message_types" json:"allowedMessageTypes"`
	Constraints              map[string]string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	IsActive                 bool              `yaml:"is_active" json:"isActive"`
}

// AllowsMessageType reports whether the profile's whitelist admits mt.
// An empty whitelist admits every type.
func (p Profile) AllowsMessageType(mt string) bool {
	if len(p.AllowedMessageTypes) == 0 {
		return true
	}
	for _, t := range p.AllowedMessageTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// Store holds profiles keyed by policy version. Reads dominate; Replace is
// only called by the hot-reload path.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewStore creates a Store over the given version -> profile map.
func NewStore(profiles map[string]Profile) *Store {
	if profiles == nil {
		profiles = make(map[string]Profile)
	}
	return &Store{profiles: profiles}
}

// storeFile is the YAML shape of the profiles file.
type storeFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Load reads profiles from a YAML file. Empty path falls back to
// ~/.trustplane/profiles.yaml. A missing file yields an empty store
// (nothing resolves; policy guard fails closed).
func Load(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewStore(nil), nil
		}
		path = filepath.Join(home, ".trustplane", "profiles.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(nil), nil
		}
		return nil, fmt.Errorf("policy: read profiles: %w", err)
	}

	var file storeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("policy: parse profiles: %w", err)
	}
	return NewStore(file.Profiles), nil
}

// Resolve returns the profile for a policy version.
func (s *Store) Resolve(policyVersion string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[policyVersion]
	return p, ok
}

// Replace swaps the full profile set. Used by hot reload.
func (s *Store) Replace(profiles map[string]Profile) {
	if profiles == nil {
		profiles = make(map[string]Profile)
	}
	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
}

// Versions returns the known policy versions. Order is not specified.
func (s *Store) Versions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.profiles))
	for v := range s.profiles {
		out = append(out, v)
	}
	return out
}

// CompareAmounts compares two decimal amount strings exactly.
// Returns -1, 0, or 1, or an error when either string does not parse.
func CompareAmounts(a, b string) (int, error) {
	ra, ok := new(big.Rat).SetString(a)
	if !ok {
		return 0, fmt.Errorf("policy: invalid amount %q", a)
	}
	rb, ok := new(big.Rat).SetString(b)
	if !ok {
		return 0, fmt.Errorf("policy: invalid amount %q", b)
	}
	return ra.Cmp(rb), nil
}
