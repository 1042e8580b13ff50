// Package auth verifies bearer tokens issued by an external identity
// provider. Token issuance is out of scope here per §6 — this package
// only parses and validates what arrives in the Authorization header.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the teacher's access-token shape, trimmed to the
// binary admin/customer model: the data model in §3 carries no
// agent/role entity, so there is no RoleBindings map to parse, only a
// single IsAdmin flag.
type Claims struct {
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"token_type"` // access, unauth
	jwt.RegisteredClaims
}

// Service validates tokens signed with a shared secret. It never signs
// one; GenerateAccessToken and friends live in the identity provider,
// not here.
type Service struct {
	secretKey string
}

func NewService(secretKey string) *Service {
	return &Service{secretKey: secretKey}
}

// ValidateToken parses and verifies a JWT, rejecting anything not
// signed with HMAC under the configured secret.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
