package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pinProfiles(t *testing.T, dir, profilesPath string) (*Manifest, string) {
	t.Helper()
	manifestPath := filepath.Join(dir, "policy-hashes.json")
	m, err := WriteManifest(manifestPath, "v1", []string{profilesPath})
	if err != nil {
		t.Fatal(err)
	}
	return m, manifestPath
}

func TestMissingManifestIsFatal(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
	if !strings.Contains(err.Error(), "integrity checks cannot proceed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMalformedManifestIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy-hashes.json")
	if err := os.WriteFile(path, []byte(`{"hashes": {}}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for manifest without active version")
	}
}

func TestLoadVerifiedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	profilesPath := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, profilesPath, "v1", "pinned")
	_, manifestPath := pinProfiles(t, dir, profilesPath)

	m, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	store, err := LoadVerified(profilesPath, m)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Resolve("v1"); !ok {
		t.Fatal("expected v1 after verified load")
	}
}

func TestMissingHashEntryFailsVerification(t *testing.T) {
	dir := t.TempDir()
	profilesPath := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, profilesPath, "v1", "pinned")

	m := &Manifest{ActivePolicyVersion: "v1", Hashes: map[string]string{}}
	if _, err := LoadVerified(profilesPath, m); err == nil {
		t.Fatal("expected error for missing manifest entry")
	} else if !strings.Contains(err.Error(), "hash missing") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTamperedPolicyFileFailsVerification(t *testing.T) {
	dir := t.TempDir()
	profilesPath := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, profilesPath, "v1", "pinned")
	m, _ := pinProfiles(t, dir, profilesPath)

	writeProfiles(t, profilesPath, "v1", "tampered")
	if _, err := LoadVerified(profilesPath, m); err == nil {
		t.Fatal("expected error for hash mismatch")
	} else if !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAssertActiveVersion(t *testing.T) {
	m := &Manifest{ActivePolicyVersion: "v2", Hashes: map[string]string{}}
	if err := m.AssertActiveVersion("v2"); err != nil {
		t.Fatal(err)
	}
	if err := m.AssertActiveVersion("v1"); err == nil {
		t.Fatal("expected error for unpinned policy version")
	}
}

func TestReloadRefusesUnpinnedChange(t *testing.T) {
	dir := t.TempDir()
	profilesPath := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, profilesPath, "v1", "pinned")
	m, _ := pinProfiles(t, dir, profilesPath)

	store, err := LoadVerified(profilesPath, m)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReloader(store, profilesPath, m)
	if err != nil {
		t.Fatal(err)
	}

	// A write that nobody pinned must never reach the store.
	writeProfiles(t, profilesPath, "v2", "unpinned")
	r.reload()

	if _, ok := store.Resolve("v2"); ok {
		t.Fatal("unpinned profile change reached the store")
	}
	if _, ok := store.Resolve("v1"); !ok {
		t.Fatal("expected previous profiles to survive refused reload")
	}
}

func TestReloadAcceptsRepinnedChange(t *testing.T) {
	dir := t.TempDir()
	profilesPath := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, profilesPath, "v1", "pinned")
	_, manifestPath := pinProfiles(t, dir, profilesPath)

	writeProfiles(t, profilesPath, "v2", "repinned")
	m, err := WriteManifest(manifestPath, "v2", []string{profilesPath})
	if err != nil {
		t.Fatal(err)
	}

	store := NewStore(nil)
	r, err := NewReloader(store, profilesPath, m)
	if err != nil {
		t.Fatal(err)
	}
	r.reload()

	if _, ok := store.Resolve("v2"); !ok {
		t.Fatal("expected repinned profiles to load")
	}
}
