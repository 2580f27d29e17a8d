package rest

import (
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const tokenTypeAccess = "access"

type TokenClaims struct {
	UserID string `json:"sub"`
	Type   string `json:"typ"`
	Exp    int64  `json:"exp"`
}

// IssueAccessToken signs an HS256 access token for id. Identity issuance
// lives elsewhere; this backs the token command and tests.
func IssueAccessToken(secret string, id uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": id.String(),
		"exp": expiresAt.Unix(),
		"iat": now.Unix(),
		"typ": tokenTypeAccess,
	})

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}
