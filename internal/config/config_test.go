package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody/pkg/money"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "USDT", cfg.Business.Token)
	assert.Equal(t, 2*time.Hour, cfg.Business.WithdrawLock)
	assert.Equal(t, 10, cfg.Business.ActivityLimit)

	policy, err := cfg.Business.BonusPolicy()
	require.NoError(t, err)
	assert.Equal(t, money.FromUnits(100), policy.Threshold)
	assert.Equal(t, money.FromUnits(100), policy.Amount)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 8080
database:
  driver: postgres
business:
  bonus_amount: "50.5"
  withdraw_lock: 30m
admin:
  account_ids: [7, 9]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CUSTODY_SERVER_PORT", "9090")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Business.WithdrawLock)
	assert.True(t, cfg.Admin.IsAdmin(9))
	assert.False(t, cfg.Admin.IsAdmin(8))

	policy, err := cfg.Business.BonusPolicy()
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("50.5"), policy.Amount)
}

func TestLoadConfigRejectsBadBonus(t *testing.T) {
	t.Setenv("CUSTODY_BUSINESS_BONUS_AMOUNT", "lots")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
