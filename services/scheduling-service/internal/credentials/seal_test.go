package credentials

import (
	"errors"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal("1//0g-refresh-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "refresh-token") {
		t.Fatalf("token not sealed: %q", sealed)
	}
	again, _ := s.Seal("1//0g-refresh-token")
	if again == sealed {
		t.Fatal("expected a fresh nonce per seal")
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "1//0g-refresh-token" {
		t.Fatalf("Open = %q", plain)
	}
}

func TestOpenPassesLegacyPlaintext(t *testing.T) {
	s, _ := NewSealer("k")
	if got, err := s.Open("plain-token"); err != nil || got != "plain-token" {
		t.Fatalf("Open = %q, %v", got, err)
	}
	var none *Sealer
	if got, err := none.Open("plain-token"); err != nil || got != "plain-token" {
		t.Fatalf("nil Open = %q, %v", got, err)
	}
}

func TestOpenRejectsWrongKeyAndTampering(t *testing.T) {
	a, _ := NewSealer("key-a")
	b, _ := NewSealer("key-b")
	sealed, err := a.Seal("token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected wrong key to fail")
	}
	tampered := sealed[:len(sealed)-2] + "AA"
	if tampered != sealed {
		if _, err := a.Open(tampered); err == nil {
			t.Fatal("expected tampered token to fail")
		}
	}
	var none *Sealer
	if _, err := none.Open(sealed); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestNewSealerEmptySecret(t *testing.T) {
	s, err := NewSealer("")
	if err != nil || s != nil {
		t.Fatalf("NewSealer(\"\") = %v, %v", s, err)
	}
}
