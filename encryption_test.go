package strata

import (
	"bytes"
	"testing"
)

func TestEncryptorDisabled(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled config: %v", err)
	}
	if enc != nil {
		t.Error("disabled encryption should yield a nil encryptor")
	}
}

func TestEncryptorRequiresKeyMaterial(t *testing.T) {
	if _, err := NewEncryptor(EncryptionConfig{Enabled: true}); err == nil {
		t.Error("expected error when enabled without key or password")
	}
	if _, err := NewEncryptor(EncryptionConfig{Enabled: true, Key: []byte("short")}); err == nil {
		t.Error("expected error for wrong key size")
	}
}

func TestEncryptorRawKeyRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, Key: key})
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte(`{"entries": 12}`)
	sealed, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("round trip = %q, want %q", opened, plaintext)
	}
}

func TestEncryptorPasswordSurvivesRestart(t *testing.T) {
	first, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "correct horse"})
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := first.Encrypt([]byte("state"))
	if err != nil {
		t.Fatal(err)
	}

	// A fresh encryptor with the same password decrypts old payloads; the
	// salt travels inside the payload.
	second, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "correct horse"})
	if err != nil {
		t.Fatal(err)
	}
	opened, err := second.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt with fresh encryptor: %v", err)
	}
	if string(opened) != "state" {
		t.Errorf("round trip = %q", opened)
	}
}

func TestEncryptorWrongPassword(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "right"})
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	wrong, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wrong.Decrypt(sealed); err == nil {
		t.Error("expected decryption failure with wrong password")
	}

	if _, err := enc.Decrypt([]byte("short")); err == nil {
		t.Error("expected error for truncated payload")
	}
}
