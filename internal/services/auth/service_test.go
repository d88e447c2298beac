package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/config"
)

func TestTokenRoundTrip(t *testing.T) {
	restore := config.SetJWTSecret([]byte("test-secret"))
	defer restore()

	token, err := IssueToken("owner-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	result := ValidateToken(token)
	if !result.Valid {
		t.Fatal("Expected freshly issued token to validate")
	}
	if result.OwnerID != "owner-42" {
		t.Errorf("Expected owner-42, got %q", result.OwnerID)
	}
	if result.ExpiresAt.Before(time.Now()) {
		t.Error("Expiry should be in the future")
	}
}

func TestValidateTokenRejections(t *testing.T) {
	restore := config.SetJWTSecret([]byte("test-secret"))
	defer restore()

	t.Run("garbage token", func(t *testing.T) {
		if ValidateToken("not-a-jwt").Valid {
			t.Error("Expected garbage token to fail")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := IssueToken("owner-42", time.Hour)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}

		swap := config.SetJWTSecret([]byte("different-secret"))
		defer swap()
		if ValidateToken(token).Valid {
			t.Error("Expected token signed with another secret to fail")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueToken("owner-42", -time.Minute)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		if ValidateToken(token).Valid {
			t.Error("Expected expired token to fail")
		}
	})
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", ""},
		{"bearer token", "Bearer abc123", "abc123"},
		{"wrong scheme", "Basic abc123", ""},
		{"malformed header", "Bearerabc123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := ExtractToken(r); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
