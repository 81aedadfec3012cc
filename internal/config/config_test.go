package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigValue(t *testing.T) {
	t.Setenv("TEST_CONFIG_VALUE", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "TEST_CONFIG_VALUE", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "TEST_CONFIG_VALUE", "default"))
	assert.Equal(t, "default", getConfigValue("", "TEST_CONFIG_VALUE_UNSET", "default"))
}

func TestGetBoolConfigValue(t *testing.T) {
	assert.True(t, getBoolConfigValue("true", "UNSET", false))
	assert.True(t, getBoolConfigValue("1", "UNSET", false))
	assert.True(t, getBoolConfigValue("yes", "UNSET", false))
	assert.False(t, getBoolConfigValue("nope", "UNSET", true))
	assert.True(t, getBoolConfigValue("", "UNSET", true))
}

func TestGetDurationConfigValue(t *testing.T) {
	assert.Equal(t, 5*time.Second, getDurationConfigValue("5s", "UNSET", time.Second))
	assert.Equal(t, time.Second, getDurationConfigValue("not-a-duration", "UNSET", time.Second))
}

func TestValidate_RejectsEmptyRoot(t *testing.T) {
	cfg := &Config{
		App:        AppConfig{Environment: "development"},
		Logger:     LoggerConfig{Level: "info"},
		Collection: CollectionConfig{DBPath: "/tmp/db", Root: ""},
		Position:   PositionConfig{TimeToFolderEnd: time.Second, MaxGroups: 1},
		Transcode:  TranscodeConfig{MaxRuntime: time.Hour, LowBitrateK: 1, MedBitrateK: 2, HighBitrateK: 3},
		Cache:      CacheConfig{MaxSize: 1, MaxFiles: 1},
		Admission:  AdmissionConfig{MaxTranscodings: 1, RateLimitPerSec: 1, Burst: 1},
		Folder:     FolderConfig{CDFolderPattern: discFolderDefault},
	}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadCDPattern(t *testing.T) {
	cfg := validConfig()
	cfg.Folder.CDFolderPattern = "("
	require.Error(t, cfg.Validate())
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/.env"
	require.NoError(t, os.WriteFile(path, []byte("# comment\nFOO_TEST_KEY=bar\n"), 0o644))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "bar", os.Getenv("FOO_TEST_KEY"))
}

func validConfig() *Config {
	return &Config{
		App:        AppConfig{Environment: "development"},
		Logger:     LoggerConfig{Level: "info"},
		Collection: CollectionConfig{DBPath: "/tmp/db", Root: "/tmp/lib"},
		Position:   PositionConfig{TimeToFolderEnd: time.Second, MaxGroups: 1},
		Transcode:  TranscodeConfig{MaxRuntime: time.Hour, LowBitrateK: 1, MedBitrateK: 2, HighBitrateK: 3},
		Cache:      CacheConfig{MaxSize: 1, MaxFiles: 1},
		Admission:  AdmissionConfig{MaxTranscodings: 1, RateLimitPerSec: 1, Burst: 1},
		Folder:     FolderConfig{CDFolderPattern: discFolderDefault},
	}
}
