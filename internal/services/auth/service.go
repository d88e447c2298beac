package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/config"
)

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		log.Warn().Msg("Malformed Authorization header")
		return ""
	}

	return parts[1]
}

// TokenValidationResult carries the outcome of bearer token validation. The
// subject claim becomes the opaque owner id conversations are tagged with.
type TokenValidationResult struct {
	Valid     bool
	OwnerID   string
	ExpiresAt time.Time
}

type Claims struct {
	jwt.RegisteredClaims
}

func ValidateToken(tokenString string) TokenValidationResult {
	result := TokenValidationResult{Valid: false}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetJWTSecret(), nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse token")
		return result
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		log.Error().Msg("Invalid token claims")
		return result
	}

	if claims.Subject == "" {
		log.Error().Msg("Missing subject in token")
		return result
	}

	result.Valid = true
	result.OwnerID = claims.Subject
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result
}

// IssueToken mints a signed bearer token for an owner id.
func IssueToken(ownerID string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(config.GetJWTSecret())
}
