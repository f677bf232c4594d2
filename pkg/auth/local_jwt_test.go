package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestAuth(t *testing.T) *LocalJWTAuth {
	t.Helper()
	a, err := NewLocalJWTAuth("test-secret-key", 0, 0)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth failed: %v", err)
	}
	return a
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer abc123", "abc123", false},
		{"case insensitive scheme", "bearer abc123", "abc123", false},
		{"empty header", "", "", true},
		{"missing scheme", "abc123", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"empty token", "Bearer   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a := newTestAuth(t)

	access, refresh, err := a.GenerateTokens("user-123", "u@example.com")
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}

	identity, err := a.VerifyAccessToken(access)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if identity.ID != "user-123" || identity.Email != "u@example.com" {
		t.Errorf("unexpected identity: %+v", identity)
	}

	claims, err := a.VerifyRefreshToken(refresh)
	if err != nil {
		t.Fatalf("VerifyRefreshToken failed: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("unexpected refresh subject: %s", claims.UserID)
	}
	if claims.TokenID == "" {
		t.Error("refresh token should carry a token ID")
	}

	// An access token is not acceptable where a refresh token is required
	if _, err := a.VerifyRefreshToken(access); err == nil {
		t.Error("access token should not verify as refresh token")
	}
}

func TestVerifyAccessToken_WrongKey(t *testing.T) {
	a := newTestAuth(t)
	other, _ := NewLocalJWTAuth("different-secret", 0, 0)

	access, _, err := other.GenerateTokens("user-123", "u@example.com")
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}
	if _, err := a.VerifyAccessToken(access); err == nil {
		t.Error("token signed with a different key should be rejected")
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	a, err := NewLocalJWTAuth("test-secret-key", -time.Minute, 0)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth failed: %v", err)
	}

	access, _, err := a.GenerateTokens("user-123", "u@example.com")
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}
	if _, err := a.VerifyAccessToken(access); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	a := newTestAuth(t)

	hash, err := a.HashPassword("correct horse 1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := a.VerifyPassword(hash, "correct horse 1")
	if err != nil || !ok {
		t.Fatalf("VerifyPassword should accept the right password: ok=%v err=%v", ok, err)
	}
	ok, err = a.VerifyPassword(hash, "wrong password")
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if ok {
		t.Error("VerifyPassword should reject a wrong password")
	}

	// Same password twice yields different hashes (random salt)
	hash2, _ := a.HashPassword("correct horse 1")
	if hash == hash2 {
		t.Error("hashes should be salted")
	}

	if _, err := a.VerifyPassword("not-a-hash", "x"); err == nil {
		t.Error("malformed hash should error")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"short1", true},
		{"onlyletters", true},
		{"12345678", true},
		{"letters123", false},
		{"Str0ngEnough", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}
