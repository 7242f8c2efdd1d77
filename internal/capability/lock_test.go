package capability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLockRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.lock.yaml")

	if err := WriteLock(path, 1); err != nil {
		t.Fatal(err)
	}
	if err := CheckLock(path); err != nil {
		t.Fatalf("expected freshly written lock to pass: %v", err)
	}
}

func TestMissingLockFilePasses(t *testing.T) {
	if err := CheckLock(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("expected missing lock to pass: %v", err)
	}
}

func TestLockDetectsRemovedCapability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.lock.yaml")

	lock := CurrentLock(1)
	lock.Capabilities["payment:legacy"] = "control-plane" // verb no longer in the catalog
	data, _ := yaml.Marshal(lock)
	os.WriteFile(path, data, 0644)

	err := CheckLock(path)
	if err == nil || !strings.Contains(err.Error(), "removed") {
		t.Fatalf("expected removal violation, got %v", err)
	}
}

func TestLockDetectsReassignedOwnership(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.lock.yaml")

	lock := CurrentLock(1)
	lock.Capabilities[string(ExecutionAttempt)] = "control-plane"
	data, _ := yaml.Marshal(lock)
	os.WriteFile(path, data, 0644)

	err := CheckLock(path)
	if err == nil || !strings.Contains(err.Error(), "reassigned") {
		t.Fatalf("expected reassignment violation, got %v", err)
	}
}

func TestNewCapabilitiesAreAdditive(t *testing.T) {
	// A lock written before a verb existed still passes: the catalog may
	// grow, never shrink.
	path := filepath.Join(t.TempDir(), "capabilities.lock.yaml")

	lock := CurrentLock(1)
	delete(lock.Capabilities, string(LedgerWrite))
	data, _ := yaml.Marshal(lock)
	os.WriteFile(path, data, 0644)

	if err := CheckLock(path); err != nil {
		t.Fatalf("expected additive growth to pass: %v", err)
	}
}
