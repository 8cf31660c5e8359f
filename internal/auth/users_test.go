package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestLoadUserStore_MissingFile(t *testing.T) {
	s, err := LoadUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	if !s.Empty() {
		t.Fatal("store from missing file should be empty")
	}
}

func TestLoadUserStore_CorruptFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(p, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadUserStore(p); err == nil {
		t.Fatal("expected error for corrupt users file")
	}
}

func TestUserStore_SeedPersistsAndReloads(t *testing.T) {
	p := filepath.Join(t.TempDir(), "users.json")

	s, err := LoadUserStore(p)
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	if err := s.Seed("admin", "hunter22", bcrypt.MinCost); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if s.Empty() {
		t.Fatal("store empty after Seed")
	}

	// a fresh load (restart) sees the seeded user
	reloaded, err := LoadUserStore(p)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	u, ok := reloaded.find("admin")
	if !ok {
		t.Fatal("seeded user missing after reload")
	}
	if !u.Active {
		t.Fatal("seeded user not active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")); err != nil {
		t.Fatalf("seeded hash does not match password: %v", err)
	}
}

func TestUserStore_SeedExistingIsNoop(t *testing.T) {
	p := filepath.Join(t.TempDir(), "users.json")
	s, err := LoadUserStore(p)
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	if err := s.Seed("admin", "first-password", bcrypt.MinCost); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	before, _ := s.find("admin")

	if err := s.Seed("admin", "second-password", bcrypt.MinCost); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	after, _ := s.find("admin")
	if after.PasswordHash != before.PasswordHash {
		t.Fatal("second Seed replaced the existing hash")
	}
}

func TestUserStore_FileNeverHoldsPlaintext(t *testing.T) {
	p := filepath.Join(t.TempDir(), "users.json")
	s, err := LoadUserStore(p)
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	if err := s.Seed("admin", "supersecretpw", bcrypt.MinCost); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	raw, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(raw), "supersecretpw") {
		t.Fatal("users file contains the plaintext password")
	}
	var list []User
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("users file is not a JSON array: %v", err)
	}
	if len(list) != 1 || !strings.HasPrefix(list[0].PasswordHash, "$2") {
		t.Fatalf("unexpected file contents: %+v", list)
	}
}

func TestUserStore_PersistLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadUserStore(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := s.Seed(name, "password-"+name, bcrypt.MinCost); err != nil {
			t.Fatalf("Seed %s: %v", name, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "users.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("dir contents = %v, want only users.json", names)
	}
}
