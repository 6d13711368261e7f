// Package auth turns bearer tokens into order actors.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storecore/internal/order"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// Claims carried by access tokens. user_id is numeric for customers and may
// be absent for service tokens.
type Claims struct {
	Role   string `json:"role"`
	UserID uint   `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ExtractAccessToken reads the token from the access_token cookie, falling
// back to the Authorization bearer header.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// ParseActor verifies an HS256 token and maps its claims to an actor.
func ParseActor(token string, secret []byte) (order.Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return order.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, err := roleOf(claims.Role)
	if err != nil {
		return order.Actor{}, err
	}

	actor := order.Actor{Role: role}
	if claims.UserID != 0 {
		actor.ID = strconv.FormatUint(uint64(claims.UserID), 10)
	} else if claims.Subject != "" {
		actor.ID = claims.Subject
	}
	return actor, nil
}

// IssueToken signs a token for actor. Admin tooling and tests use it.
func IssueToken(secret []byte, actor order.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	if id, err := strconv.ParseUint(actor.ID, 10, 32); err == nil {
		claims.UserID = uint(id)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func roleOf(claim string) (order.Role, error) {
	switch claim {
	case "admin":
		return order.RoleAdmin, nil
	case "customer", "user":
		return order.RoleCustomer, nil
	case "system":
		return order.RoleSystem, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownRole, claim)
}
