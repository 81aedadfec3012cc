// Package config provides application configuration management with support
// for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the application configuration for the streaming core.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Collection CollectionConfig
	Folder     FolderConfig
	Position   PositionConfig
	Transcode  TranscodeConfig
	Cache      CacheConfig
	Admission  AdmissionConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn error"`
}

// CollectionConfig holds the embedded KV store and watcher tuning knobs.
type CollectionConfig struct {
	// DBPath is the directory holding the badger database for C3.
	DBPath string `validate:"required"`
	// Root is the filesystem root the collection mirrors.
	Root string `validate:"required"`
	// CoalesceInterval is how often C4's action coalescer flushes.
	CoalesceInterval time.Duration
	// CoalesceMaxBuffer caps the number of buffered actions before a forced flush.
	CoalesceMaxBuffer int
	// WatcherBackoff is how long the watcher loop waits after a watch-channel error.
	WatcherBackoff time.Duration
}

// FolderConfig tunes C2's directory-listing behavior.
type FolderConfig struct {
	// TagAllowList names the probe tags to keep in folder records. No package
	// reads it: internal/folder keeps every probed tag whatever it holds.
	TagAllowList []string
	// TagEncodingOverride names a text encoding for tag bytes that are not
	// valid UTF-8. No package reads it: tags are stored as the probe decodes them.
	TagEncodingOverride string
	// CDFolderPattern, if set, is matched against subfolder names to trigger
	// CD-folder collapse (step 3 of list_dir).
	CDFolderPattern string
	// ChapteriseFromDuration makes any audio file at least this long get
	// split into synthetic chapters even without native chapter markers.
	ChapteriseFromDuration time.Duration
	// FollowSymlinks is loaded from FOLLOW_SYMLINKS but no package reads it:
	// internal/folder never lists a symlinked directory as a subfolder, and
	// lists a symlinked file with an audio extension like a regular file.
	FollowSymlinks bool
	// NaturalSort is loaded but no package reads it: numeric-aware ("track 2"
	// before "track 10") ordering is set by the collation.Comparator passed
	// to folder.New.
	NaturalSort bool
}

// PositionConfig tunes C5's reading-position bookkeeping.
type PositionConfig struct {
	// TimeToFolderEnd is how close to a folder's final file's end a position
	// must be to be treated as "folder finished".
	TimeToFolderEnd time.Duration `validate:"gt=0"`
	// MaxGroups caps how many distinct groups may hold a position on one folder.
	MaxGroups int `validate:"gt=0"`
}

// TranscodeConfig holds audio transcoding configuration (C7).
type TranscodeConfig struct {
	Enabled       bool
	FFmpegPath    string
	MaxRuntime    time.Duration `validate:"gt=0"`
	LowBitrateK   int           `validate:"gt=0"`
	MedBitrateK   int           `validate:"gt=0"`
	HighBitrateK  int           `validate:"gt=0"`
}

// CacheConfig holds transcoding-cache configuration (C8).
type CacheConfig struct {
	Disabled bool
	RootDir  string
	MaxSize  int64 `validate:"gt=0"`
	MaxFiles int   `validate:"gt=0"`
}

// AdmissionConfig holds admission-control configuration (C9).
type AdmissionConfig struct {
	MaxTranscodings int     `validate:"gt=0"`
	RateLimitPerSec float64 `validate:"gt=0"`
	Burst           float64 `validate:"gt=0"`
}

var discFolderDefault = regexp.MustCompile(`(?i)^(cd|dis[ck])\s*\d+$`).String()

// Load loads configuration from multiple sources with precedence:
//  1. Command-line flags (highest priority).
//  2. Environment variables.
//  3. .env file.
//  4. Default values (lowest priority).
func Load() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dbPath := flag.String("db-path", "", "Path to the collection index database")
	libraryRoot := flag.String("library-root", "", "Path to the audiobook library root")
	cdPattern := flag.String("cd-folder-pattern", "", "Regex matching CD/disc subfolder names")
	cachePath := flag.String("transcode-cache-path", "", "Path for the transcoding cache")
	ffmpegPath := flag.String("ffmpeg-path", "", "Path to ffmpeg binary (default: auto-detect)")
	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Collection: CollectionConfig{
			DBPath:            getConfigValue(*dbPath, "COLLECTION_DB_PATH", ""),
			Root:              getConfigValue(*libraryRoot, "LIBRARY_ROOT", ""),
			CoalesceInterval:  getDurationConfigValue("", "UPDATER_COALESCE_INTERVAL", 10*time.Second),
			CoalesceMaxBuffer: getIntConfigValue("", "UPDATER_COALESCE_MAX_BUFFER", 10_000),
			WatcherBackoff:    getDurationConfigValue("", "UPDATER_WATCHER_BACKOFF", 10*time.Second),
		},
		Folder: FolderConfig{
			CDFolderPattern:        getConfigValue(*cdPattern, "CD_FOLDER_PATTERN", discFolderDefault),
			ChapteriseFromDuration: getDurationConfigValue("", "CHAPTERISE_FROM_DURATION", 0),
			FollowSymlinks:         getBoolConfigValue("", "FOLLOW_SYMLINKS", false),
			NaturalSort:            getBoolConfigValue("", "NATURAL_SORT", true),
		},
		Position: PositionConfig{
			TimeToFolderEnd: getDurationConfigValue("", "POSITION_TIME_TO_FOLDER_END", 5*time.Second),
			MaxGroups:       getIntConfigValue("", "POSITION_MAX_GROUPS", 64),
		},
		Transcode: TranscodeConfig{
			Enabled:      getBoolConfigValue("", "TRANSCODE_ENABLED", true),
			FFmpegPath:   getConfigValue(*ffmpegPath, "FFMPEG_PATH", ""),
			MaxRuntime:   getDurationConfigValue("", "TRANSCODE_MAX_RUNTIME", 6*time.Hour),
			LowBitrateK:  getIntConfigValue("", "TRANSCODE_LOW_BITRATE_K", 32),
			MedBitrateK:  getIntConfigValue("", "TRANSCODE_MED_BITRATE_K", 64),
			HighBitrateK: getIntConfigValue("", "TRANSCODE_HIGH_BITRATE_K", 128),
		},
		Cache: CacheConfig{
			Disabled: getBoolConfigValue("", "CACHE_DISABLED", false),
			RootDir:  getConfigValue(*cachePath, "CACHE_ROOT_DIR", ""),
			MaxSize:  int64(getIntConfigValue("", "CACHE_MAX_SIZE_BYTES", 10*1024*1024*1024)),
			MaxFiles: getIntConfigValue("", "CACHE_MAX_FILES", 2048),
		},
		Admission: AdmissionConfig{
			MaxTranscodings: getIntConfigValue("", "ADMISSION_MAX_TRANSCODINGS", 4),
			RateLimitPerSec: getFloatConfigValue("", "ADMISSION_RATE_PER_SEC", 2.0),
			Burst:           getFloatConfigValue("", "ADMISSION_BURST", 2.2),
		},
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks that all required config values are present and well-formed.
func (c *Config) Validate() error {
	if err := validate.Struct(c.App); err != nil {
		return err
	}
	if err := validate.Struct(c.Logger); err != nil {
		return err
	}
	if c.Collection.Root == "" {
		return fmt.Errorf("library root cannot be empty")
	}
	if c.Collection.DBPath == "" {
		return fmt.Errorf("collection db path cannot be empty")
	}
	if err := validate.Struct(c.Position); err != nil {
		return err
	}
	if err := validate.Struct(c.Transcode); err != nil {
		return err
	}
	if err := validate.Struct(c.Cache); err != nil {
		return err
	}
	if err := validate.Struct(c.Admission); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.Folder.CDFolderPattern); err != nil {
		return fmt.Errorf("invalid cd-folder-pattern: %w", err)
	}
	return nil
}

func (c *Config) expandPaths() error {
	expanded, err := expandPath(c.Collection.DBPath, "")
	if err != nil {
		return err
	}
	c.Collection.DBPath = expanded

	if c.Collection.Root != "" {
		expanded, err := expandPath(c.Collection.Root, "")
		if err != nil {
			return err
		}
		c.Collection.Root = expanded
	}

	defaultCache := ""
	if c.Collection.DBPath != "" {
		defaultCache = filepath.Join(filepath.Dir(c.Collection.DBPath), "cache", "transcode")
	}
	expandedCache, err := expandPath(c.Cache.RootDir, defaultCache)
	if err != nil {
		return err
	}
	c.Cache.RootDir = expandedCache

	return nil
}

// expandPath expands ~ and makes the path absolute. If path is empty and
// defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue returns a time.Duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) time.Duration {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return defaultValue
	}
	return d
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- config file path is operator-controlled
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
