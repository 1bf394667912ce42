package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE",
	"PORT",
	"DATABASE_PATH",
	"TIMEZONE",
	"PLACEHOLDER_ID_PREFIX",
	"AUTO_COMPLETE_THRESHOLD",
	"MUTATION_TIMEOUT",
	"REFRESH_CRON",
	"AUTO_COMPLETE_CRON",
	"METRIC_COLLECTION_INTERVAL",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	config, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", config.GetPort())
	assert.Equal(t, "sqlite.db", config.GetDatabasePath())
	assert.Equal(t, time.Local, config.GetLocation())
	assert.Equal(t, "fallback-", config.GetPlaceholderIDPrefix())
	assert.Zero(t, config.GetAutoCompleteThreshold())
	assert.Equal(t, 30*time.Second, config.GetMutationTimeout())
	assert.Equal(t, "*/15 * * * *", config.GetRefreshCron())
	assert.Equal(t, 5*time.Second, config.GetMetricCollectionInterval())
}

func TestConfigFileAndEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
timezone: America/Chicago
auto_complete_threshold: 10m
refresh_cron: "0 * * * *"
auto_complete_cron: off
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	config, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "7070", config.GetPort(), "env wins over the file")
	assert.Equal(t, "America/Chicago", config.GetLocation().String())
	assert.Equal(t, 10*time.Minute, config.GetAutoCompleteThreshold())
	assert.Equal(t, "0 * * * *", config.GetRefreshCron())
	assert.Equal(t, CRON_DISABLED, config.GetAutoCompleteCron())
}

func TestConfigRejectsBadValues(t *testing.T) {
	for name, env := range map[string][2]string{
		"timezone":        {"TIMEZONE", "Mars/Olympus"},
		"cron":            {"REFRESH_CRON", "every tuesday"},
		"negative":        {"AUTO_COMPLETE_THRESHOLD", "-5m"},
		"zero timeout":    {"MUTATION_TIMEOUT", "0s"},
		"not a duration":  {"METRIC_COLLECTION_INTERVAL", "soon"},
		"missing overlay": {"CONFIG_FILE", "/does/not/exist.yaml"},
	} {
		t.Run(name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(env[0], env[1])
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}
