package jwt

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the token claims the wallet cares about: the caller's identity
// and an optional admin role. Identity management itself is external; the
// wallet only consumes tokens.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

// JWT provides methods to generate and validate JWT tokens.
type JWT struct {
	secretKey string
	exp       time.Duration
}

// Opt configures a JWT instance.
type Opt func(*JWT)

// WithSecretKey sets the signing key.
func WithSecretKey(secret string) Opt {
	return func(j *JWT) { j.secretKey = secret }
}

// WithExpiration sets the token lifetime.
func WithExpiration(exp time.Duration) Opt {
	return func(j *JWT) { j.exp = exp }
}

// New creates a JWT instance.
func New(opts ...Opt) *JWT {
	j := &JWT{exp: time.Hour}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Generate creates a signed token carrying the user id and role.
func (j *JWT) Generate(ctx context.Context, userID uuid.UUID, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(j.exp).Unix(),
		"iat":     time.Now().Unix(),
	}
	if role != "" {
		claims["role"] = role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// Validate checks the token's signature and expiry.
func (j *JWT) Validate(ctx context.Context, tokenString string) error {
	_, err := j.GetClaims(ctx, tokenString)
	return err
}

// GetClaims parses the token string and returns its claims if valid.
func (j *JWT) GetClaims(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	userIDStr, ok := mapClaims["user_id"].(string)
	if !ok {
		return nil, errors.New("user_id not found in token")
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, errors.New("invalid user_id format")
	}

	claims := &Claims{UserID: userID}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	return claims, nil
}

// GetTokenFromRequest extracts the token string from the Authorization header.
func (j *JWT) GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}
