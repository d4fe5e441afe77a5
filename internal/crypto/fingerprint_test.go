package crypto

import (
	"errors"
	"testing"
)

func TestFingerprinter_Subject(t *testing.T) {
	t.Parallel()

	f, err := NewFingerprinter([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewFingerprinter: %v", err)
	}
	a := f.Subject("api.twitter.com", "tok;sec")
	if len(a) != 64 {
		t.Fatalf("want hex blake2b-256, got %q", a)
	}
	if a != f.Subject("api.twitter.com", "tok;sec") {
		t.Fatalf("Subject not deterministic")
	}
	if a == f.Subject("www.digits.com", "tok;sec") {
		t.Fatalf("Subject must depend on provider")
	}
	if a == f.Subject("api.twitter.com", "tok;other") {
		t.Fatalf("Subject must depend on credential")
	}

	g, _ := NewFingerprinter([]byte("fedcba9876543210"))
	if a == g.Subject("api.twitter.com", "tok;sec") {
		t.Fatalf("Subject must depend on key")
	}
}

func TestNewFingerprinter_RejectsBadKeys(t *testing.T) {
	t.Parallel()
	if _, err := NewFingerprinter([]byte("short")); !errors.Is(err, ErrKeyLength) {
		t.Fatalf("want ErrKeyLength, got %v", err)
	}
	if _, err := NewFingerprinter(make([]byte, 65)); err == nil {
		t.Fatalf("want error for oversized key")
	}
}
