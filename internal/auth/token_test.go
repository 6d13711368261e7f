package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storecore/internal/order"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAccessToken(t *testing.T) {
	t.Run("Cookie Preferred", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie_token"})
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "cookie_token", token)
	})

	t.Run("Header Fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("Empty Cookie Falls Back to Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: ""})
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("No Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic user:pass")

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})
}

func TestParseActor(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("RoundTrip", func(t *testing.T) {
		token, err := IssueToken(secret, order.Actor{Role: order.RoleAdmin, ID: "7"}, time.Hour)
		require.NoError(t, err)

		actor, err := ParseActor(token, secret)
		require.NoError(t, err)
		assert.Equal(t, order.Actor{Role: order.RoleAdmin, ID: "7"}, actor)
	})

	t.Run("UserRoleIsCustomer", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": 42,
			"role":    "user",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}).SignedString(secret)
		require.NoError(t, err)

		actor, err := ParseActor(token, secret)
		require.NoError(t, err)
		assert.Equal(t, order.RoleCustomer, actor.Role)
		assert.Equal(t, "42", actor.ID)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := IssueToken(secret, order.Actor{Role: order.RoleAdmin, ID: "7"}, -time.Hour)
		require.NoError(t, err)

		_, err = ParseActor(token, secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := IssueToken([]byte("other"), order.Actor{Role: order.RoleAdmin}, time.Hour)
		require.NoError(t, err)

		_, err = ParseActor(token, secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"role": "seller",
			"exp":  time.Now().Add(time.Hour).Unix(),
		}).SignedString(secret)
		require.NoError(t, err)

		_, err = ParseActor(token, secret)
		assert.ErrorIs(t, err, ErrUnknownRole)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := ParseActor("not-a-jwt", secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
