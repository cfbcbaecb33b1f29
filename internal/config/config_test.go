package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STORE_DRIVER", "NOTE_TTL", "COMMAND_PREFIX", "PORT",
		"BRIDGE_BOT_TOKEN", "BRIDGE_TELEGRAM_TOKEN",
		"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("STAFF_GROUP_ID", "-1003418175247")
	t.Setenv("AIRTABLE_API_KEY", "key")
	t.Setenv("AIRTABLE_BASE_ID", "base")
	t.Setenv("AIRTABLE_TABLE_PWA", "pwa_clients")
	t.Setenv("AIRTABLE_TABLE_PWA_MESSAGES", "pwa_messages")
}

func TestLoad_OK(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "tok", cfg.BotToken)
	require.Equal(t, int64(-1003418175247), cfg.StaffGroupID)
	require.Equal(t, DriverAirtable, cfg.StoreDriver)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "/env", cfg.CommandPrefix)
	require.Zero(t, cfg.NoteTTL)
}

func TestLoad_AggregatesMissing(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BRIDGE_BOT_TOKEN", "")
	t.Setenv("BRIDGE_TELEGRAM_TOKEN", "")
	t.Setenv("STAFF_GROUP_ID", "")
	t.Setenv("AIRTABLE_API_KEY", "")
	t.Setenv("AIRTABLE_BASE_ID", "")
	t.Setenv("AIRTABLE_TABLE_PWA", "")
	t.Setenv("AIRTABLE_TABLE_PWA_MESSAGES", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "BOT_TOKEN")
	require.Contains(t, err.Error(), "STAFF_GROUP_ID")
	require.Contains(t, err.Error(), "AIRTABLE_API_KEY")
	require.Contains(t, err.Error(), "AIRTABLE_TABLE_PWA_MESSAGES")
}

func TestLoad_TokenFallbacks(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BRIDGE_TELEGRAM_TOKEN", "fallback-tok")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "fallback-tok", cfg.BotToken)
}

func TestLoad_PostgresDriver(t *testing.T) {
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("STAFF_GROUP_ID", "-1")
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("STAFF_GROUP_ID", "-1")
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "STORE_DRIVER")
}

func TestLoad_BadGroupID(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STAFF_GROUP_ID", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_NoteTTL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NOTE_TTL", "45m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 45*time.Minute, cfg.NoteTTL)

	t.Setenv("NOTE_TTL", "soon")
	_, err = Load()
	require.Error(t, err)
}

func TestMediaConfigured(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.MediaConfigured())

	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "k")
	t.Setenv("CLOUDINARY_API_SECRET", "s")
	cfg, err = Load()
	require.NoError(t, err)
	require.True(t, cfg.MediaConfigured())
	require.Equal(t, "novapulse_media", cfg.CloudinaryFolder)
}
