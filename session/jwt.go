package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatewarden/gatewarden/rbac"
)

// JWTConfig holds signing configuration for stateless session tokens.
type JWTConfig struct {
	SigningMethod jwt.SigningMethod
	SigningKey    any
	VerifyingKey  any
	Expiry        time.Duration
}

// JWT verifies stateless session tokens and, for sign-in plumbing, issues
// them. Tokens carry the identity in the subject claim and the role in a
// private "role" claim; a token without a role claim yields a session
// without a role.
type JWT struct {
	config JWTConfig
}

// NewJWT builds a JWT verifier from explicit configuration.
func NewJWT(config JWTConfig) *JWT {
	return &JWT{config: config}
}

// NewHS256 is a convenience constructor for HMAC-SHA256 tokens signed and
// verified with the same secret.
func NewHS256(secret string, expiry time.Duration) *JWT {
	return &JWT{config: JWTConfig{
		SigningMethod: jwt.SigningMethodHS256,
		SigningKey:    []byte(secret),
		VerifyingKey:  []byte(secret),
		Expiry:        expiry,
	}}
}

// Claims is the token payload.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issue mints a token for identity. The role claim is omitted when role is
// empty. Issuance exists for the sign-in endpoints of the reference server;
// the decision engine never calls it.
func (j *JWT) Issue(identity string, role rbac.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.Expiry)),
		},
	}
	token := jwt.NewWithClaims(j.config.SigningMethod, claims)
	signed, err := token.SignedString(j.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// Verify implements Verifier.
func (j *JWT) Verify(ctx context.Context, tokenString string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != j.config.SigningMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.config.VerifyingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: verify token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("session: invalid token")
	}
	return &Session{Identity: claims.Subject, Role: rbac.Role(claims.Role)}, nil
}
