package capability

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Lock is the on-disk record of a locked catalog version.
// Once a lock is written, the catalog may only grow: removing a verb or
// reassigning its owning OU requires a version bump and a new lock file.
type Lock struct {
	Version      int               `yaml:"version"`
	Capabilities map[string]string `yaml:"capabilities"`
}

// CurrentLock snapshots the compiled-in catalog at the given version.
func CurrentLock(version int) Lock {
	caps := make(map[string]string, len(ouMap))
	for c, ou := range ouMap {
		caps[string(c)] = ou
	}
	return Lock{Version: version, Capabilities: caps}
}

// WriteLock writes the current catalog snapshot to path.
func WriteLock(path string, version int) error {
	data, err := yaml.Marshal(CurrentLock(version))
	if err != nil {
		return fmt.Errorf("capability: marshal lock: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// CheckLock validates the compiled-in catalog against a previously written
// lock file. A missing lock file passes (nothing locked yet). Any verb that
// the lock records but the catalog no longer contains, or whose owning OU
// changed without a version bump, is a violation.
func CheckLock(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("capability: read lock: %w", err)
	}

	var lock Lock
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return fmt.Errorf("capability: parse lock: %w", err)
	}

	current := CurrentLock(lock.Version)

	var violations []string
	for verb, lockedOU := range lock.Capabilities {
		ou, ok := current.Capabilities[verb]
		if !ok {
			violations = append(violations, fmt.Sprintf("capability %q removed from locked catalog v%d", verb, lock.Version))
			continue
		}
		if ou != lockedOU {
			violations = append(violations, fmt.Sprintf("capability %q reassigned %s -> %s without version bump", verb, lockedOU, ou))
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		return fmt.Errorf("capability: lock violated: %s", violations[0])
	}
	return nil
}
