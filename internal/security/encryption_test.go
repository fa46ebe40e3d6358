package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	box := NewSecretBox(t.TempDir())

	secret := "VISITOR_INFO1_LIVE=abc; SID=0123456789abcdef; HSID=xyz"

	sealed, err := box.Seal(secret)
	if err != nil {
		t.Fatalf("Failed to seal secret: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("Sealed value missing prefix: %s", sealed)
	}
	if strings.Contains(sealed, "SID=") {
		t.Fatal("Sealed value leaks plaintext")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Failed to open secret: %v", err)
	}
	if opened != secret {
		t.Fatalf("Opened secret doesn't match. Got: %s, Want: %s", opened, secret)
	}
}

func TestSealEmptySecret(t *testing.T) {
	if _, err := NewSecretBox(t.TempDir()).Seal(""); err == nil {
		t.Fatal("Expected error for empty secret, got nil")
	}
}

func TestOpenPlainValue(t *testing.T) {
	box := NewSecretBox(t.TempDir())

	for _, value := range []string{"", "AIzaPlainKey"} {
		got, err := box.Open(value)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", value, err)
		}
		if got != value {
			t.Errorf("Open(%q) = %q, want unchanged", value, got)
		}
	}
}

func TestOpenInvalidData(t *testing.T) {
	box := NewSecretBox(t.TempDir())
	if _, err := box.Seal("test"); err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	tests := []string{
		"enc:invalid-base64-data!!!",
		"enc:AAAA",
		"enc:" + strings.Repeat("QUJD", 20),
	}
	for _, value := range tests {
		if _, err := box.Open(value); err == nil {
			t.Errorf("Open(%q) expected error", value)
		}
	}
}

func TestKeyPersistence(t *testing.T) {
	tempDir := t.TempDir()

	sealed, err := NewSecretBox(tempDir).Seal("api-key")
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	info, err := os.Stat(filepath.Join(tempDir, ".key"))
	if err != nil {
		t.Fatalf("Key file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Key file mode = %v, want 0600", info.Mode().Perm())
	}

	// a fresh box over the same directory reuses the salt
	opened, err := NewSecretBox(tempDir).Open(sealed)
	if err != nil {
		t.Fatalf("Failed to open with new box: %v", err)
	}
	if opened != "api-key" {
		t.Errorf("Opened = %q, want api-key", opened)
	}
}

func TestDeleteKey(t *testing.T) {
	tempDir := t.TempDir()
	box := NewSecretBox(tempDir)

	sealed, err := box.Seal("api-key")
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	if err := box.DeleteKey(); err != nil {
		t.Fatalf("DeleteKey() error = %v", err)
	}
	if _, err := box.Open(sealed); err == nil {
		t.Error("Expected error opening after key deletion")
	}
	if err := box.DeleteKey(); err != nil {
		t.Errorf("Second DeleteKey() error = %v", err)
	}
}

func TestSealIsRandomized(t *testing.T) {
	box := NewSecretBox(t.TempDir())

	a, _ := box.Seal("same")
	b, _ := box.Seal("same")
	if a == b {
		t.Error("Expected different ciphertexts for repeated seals")
	}
}
