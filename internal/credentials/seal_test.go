package credentials

import "testing"

func TestAESGCMSealerRoundTrip(t *testing.T) {
	s, err := NewAESGCMSealer([]byte("test-key-do-not-use-in-prod"))
	if err != nil {
		t.Fatalf("NewAESGCMSealer: %v", err)
	}

	creds := AppCredentials{
		ClientID:     "abc123",
		ClientSecret: "shh",
		Username:     "bot-account",
		Password:     "hunter2",
		UserAgent:    "reddit-fleet/0.1",
	}

	sealed, err := SealCredentials(s, creds)
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}
	if string(sealed) == string(mustMarshal(creds)) {
		t.Fatalf("sealed blob must not equal plaintext JSON")
	}

	got, err := UnsealCredentials(s, sealed)
	if err != nil {
		t.Fatalf("UnsealCredentials: %v", err)
	}
	if got != creds {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, creds)
	}
}

func TestNewAESGCMSealerRejectsEmptyKey(t *testing.T) {
	if _, err := NewAESGCMSealer(nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

// TestAESGCMSealerRejectsTamperedCiphertext verifies GCM's authentication
// tag catches a flipped byte rather than silently returning garbage
// plaintext.
func TestAESGCMSealerRejectsTamperedCiphertext(t *testing.T) {
	s, err := NewAESGCMSealer([]byte("test-key-do-not-use-in-prod"))
	if err != nil {
		t.Fatalf("NewAESGCMSealer: %v", err)
	}
	sealed, err := s.Seal([]byte("hunter2"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := append([]byte{}, sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := s.Unseal(tampered); err == nil {
		t.Fatal("expected tampered ciphertext to fail authentication")
	}
}

func mustMarshal(c AppCredentials) []byte {
	b, _ := SealCredentials(noopSealer{}, c)
	return b
}

// noopSealer returns plaintext unchanged; used only to build a comparison
// fixture in the test above.
type noopSealer struct{}

func (noopSealer) Seal(p []byte) ([]byte, error)   { return p, nil }
func (noopSealer) Unseal(p []byte) ([]byte, error) { return p, nil }
