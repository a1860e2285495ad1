package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	plaintext := []byte(`{"imapPassword":"hunter2"}`)
	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestOpenWrongKey(t *testing.T) {
	t.Parallel()

	c1, _ := NewCipher(testKey(t))
	c2, _ := NewCipher(testKey(t))
	sealed, err := c1.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := c2.Open(sealed); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestNewCipherBadKey(t *testing.T) {
	t.Parallel()

	if _, err := NewCipher("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewCipher(short); err == nil {
		t.Fatal("expected error for short key")
	}
}
