package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	require.Equal(t, time.Minute, cfg.SessionSweepInterval)
	require.Equal(t, "Rs.", cfg.CurrencySymbol)
	require.False(t, cfg.IsProduction())
	require.Equal(t, int32(10), cfg.PGMaxConns)
	require.Equal(t, "127.0.0.1:6379", cfg.RedisOptions().Addr)
	require.Equal(t, cfg.RedisAddr, cfg.QueueRedis().Addr)
	loc, err := cfg.ShopLocation()
	require.NoError(t, err)
	require.Equal(t, time.Local, loc)
}

func TestLoadConfigShopTimezone(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("SHOP_TIMEZONE", "Asia/Karachi")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	loc, err := cfg.ShopLocation()
	require.NoError(t, err)
	require.Equal(t, "Asia/Karachi", loc.String())

	// 20:30 UTC is already the next day in Karachi.
	late := time.Date(2024, time.March, 5, 20, 30, 0, 0, time.UTC)
	require.Equal(t, 6, late.In(loc).Day())
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("SHOP_TIMEZONE", "Mars/Olympus")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "shop timezone")
}

func TestLoadConfigRejectsIdleBeyondTTL(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("SESSION_IDLE_TIMEOUT", "1h")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "c")

	_, err := LoadConfig()
	require.Error(t, err)
}
