package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "8080")
		t.Setenv("APP_ENV", "test")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec")
		t.Setenv("RECONCILE_INTERVAL", "5m")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, "whsec", cfg.WebhookSecret)
		assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
		assert.Equal(t, "storecore.events", cfg.EventsTopic)
	})

	t.Run("Missing DB host", func(t *testing.T) {
		t.Setenv("DB_HOST", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Bad interval", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("RECONCILE_INTERVAL", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "RECONCILE_INTERVAL")
	})
}

func TestParseSettings(t *testing.T) {
	t.Run("EmptyDocumentIsDefaults", func(t *testing.T) {
		s, err := ParseSettings(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultSettings(), s)
	})

	t.Run("MergesOntoDefaults", func(t *testing.T) {
		doc := []byte(`{
			"version": 1,
			"features": {"checkoutEnabled": false},
			"payment": {"pendingTimeout": "24h"},
			"accounts": {"cash": "1010"}
		}`)

		s, err := ParseSettings(doc)
		require.NoError(t, err)

		assert.False(t, s.Features.CheckoutEnabled)
		// features object replaced only the key it named
		assert.True(t, s.Features.WebhooksEnabled)
		assert.Equal(t, 24*time.Hour, s.Payment.PendingTimeout.Std())
		assert.Equal(t, "IDR", s.Payment.Currency)
		assert.Equal(t, "1010", s.Accounts.Cash)
		assert.Equal(t, "4000", s.Accounts.SalesRevenue)
	})

	t.Run("RejectsUnknownVersion", func(t *testing.T) {
		_, err := ParseSettings([]byte(`{"version": 2}`))
		assert.ErrorContains(t, err, "invalid settings")
	})

	t.Run("RejectsBadCurrency", func(t *testing.T) {
		_, err := ParseSettings([]byte(`{"payment": {"currency": "rupiah"}}`))
		assert.Error(t, err)
	})

	t.Run("RejectsBadDuration", func(t *testing.T) {
		_, err := ParseSettings([]byte(`{"sla": {"pending": 10}}`))
		assert.ErrorContains(t, err, "decode settings")
	})

	t.Run("RejectsClearedAccount", func(t *testing.T) {
		_, err := ParseSettings([]byte(`{"accounts": {"cogs": ""}}`))
		assert.Error(t, err)
	})
}

func TestLoadSettings(t *testing.T) {
	t.Run("NoPath", func(t *testing.T) {
		s, err := LoadSettings("")
		require.NoError(t, err)
		assert.Equal(t, "main", s.DefaultWarehouse)
	})

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"defaultWarehouse":"jkt-1"}`), 0o600))

		s, err := LoadSettings(path)
		require.NoError(t, err)
		assert.Equal(t, "jkt-1", s.DefaultWarehouse)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}

func TestStatic(t *testing.T) {
	s := DefaultSettings()
	s.DefaultWarehouse = "x"
	provider := Static(s)
	assert.Equal(t, "x", provider().DefaultWarehouse)
}
