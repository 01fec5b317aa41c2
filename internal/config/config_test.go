package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Session.Window)
	assert.Equal(t, 3, cfg.Deadlock.Pairs)
	assert.InDelta(t, 0.02, cfg.Deadlock.MinImprovement, 1e-9)
	assert.InDelta(t, 0.05, cfg.Deadlock.GapFloor, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Collab.TranslationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Collab.PriceBandTimeout)
	assert.Equal(t, 2*time.Second, cfg.Collab.PhrasingTimeout)
	assert.Equal(t, 3, cfg.Delivery.MaxRetries)

	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PASSWORD", "p@ss")
	t.Setenv("SESSION_WINDOW", "2h")
	t.Setenv("PRICE_BANDS", "onion:1800-2200,tomato:900-1400")
	t.Setenv("LEDGER_SIGNING_KEY", "00ff")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Session.Window)
	assert.Equal(t, time.Hour, cfg.Session.ArchiveTTL)
	assert.Equal(t, map[string]string{"onion": "1800-2200", "tomato": "900-1400"}, cfg.Collab.PriceBands)
	assert.Equal(t, "postgres://mandi:p%40ss@db:5432/negotiation_hub?sslmode=disable", cfg.Postgres.DSN())

	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, key)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "STORE_BACKEND", "mysql"},
		{"bad window", "SESSION_WINDOW", "0s"},
		{"bad pairs", "DEADLOCK_PAIRS", "1"},
		{"negative floor", "DEADLOCK_GAP_FLOOR", "-0.1"},
		{"bad key", "LEDGER_SIGNING_KEY", "zz"},
		{"unparsable duration", "TRANSLATION_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPostgres_DatabaseURLWins(t *testing.T) {
	p := Postgres{DatabaseURL: "postgres://x/y", Host: "ignored"}
	assert.Equal(t, "postgres://x/y", p.DSN())
}
