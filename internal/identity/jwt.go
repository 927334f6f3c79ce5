package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator validates HS256 tokens minted by the auth collaborator. The
// only claims the core reads are the username (sub) and role.
type JWTValidator struct {
	signingKey []byte
}

func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *JWTValidator) Validate(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("token missing subject")
	}
	role := Role(c.Role)
	switch role {
	case RoleStaff, RoleAdmin, RoleSuperadmin:
	default:
		role = RoleStaff
	}
	return Identity{Username: c.Subject, Role: role}, nil
}

// Mint issues a token for the given identity. Used by tests and local
// tooling; production tokens come from the auth service.
func (v *JWTValidator) Mint(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.Username,
		},
	})
	return token.SignedString(v.signingKey)
}
