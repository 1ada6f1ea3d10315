package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
// The struct is read-only after Load/ApplyFlags; components receive it by value
// or read it through Get().
type Config struct {
	// Port is the HTTP status API listen port (default: 3091)
	Port string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// DataDir is the directory for persistent data (database, logs)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/linkarr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string

	// WatchFolder is the directory monitored for newly downloaded media (default: /media/downloads)
	WatchFolder string

	// MediaRoot is the root of the destination library tree (default: /media)
	MediaRoot string

	// TVFolder is the TV subfolder name under MediaRoot (default: "TV")
	TVFolder string

	// MovieFolder is the movie subfolder name under MediaRoot (default: "Movies")
	MovieFolder string

	// DryRun when true logs placements without touching the filesystem
	// or the fingerprint store (default: false)
	DryRun bool

	// SkipSamples skips files with "sample" in the name (default: true)
	SkipSamples bool

	// MinFileSize is the minimum size in bytes for a file to be considered
	// real media rather than a sample or stub (default: 50 MiB)
	MinFileSize int64

	// GracePeriod is the minimum time since last modification before a file
	// is trusted as fully written (default: 2m)
	GracePeriod time.Duration

	// Workers is the number of concurrent pipeline workers (default: 3)
	Workers int

	// RetryBaseDelay is the base delay for stability retries (default: 45s)
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the exponential retry backoff (default: 30m)
	RetryMaxDelay time.Duration

	// MaxAttempts is the number of stability retries before a path is
	// abandoned until the watcher re-announces it (default: 30)
	MaxAttempts int

	// RescanCron schedules the periodic full-tree rescan of the watch folder,
	// in cron syntax or @every form (default: "@every 15m")
	RescanCron string

	// JanitorCron schedules library maintenance: empty-dir cleanup, orphan
	// movie wrapping, folder name normalization (default: "0 3 * * *")
	JanitorCron string

	// TempSuffixes are filename suffixes marking partial downloads to ignore
	TempSuffixes []string

	// VideoExtensions are the file extensions treated as media
	VideoExtensions []string

	// NotificationURLs are shoutrrr service URLs notified on Linked/Upgraded
	NotificationURLs []string

	// NotificationThrottle is the minimum interval between notifications
	// to the same URL (default: 0, no throttling)
	NotificationThrottle time.Duration

	// DailyShowTitles are lowercase titles of date-based shows that the
	// fallback parser would otherwise classify as movies
	DailyShowTitles []string
}

var cfg *Config

// Load reads configuration from LINKARR_* environment variables with defaults.
// Should be called once at application startup.
func Load() *Config {
	dataDir := getEnvOrDefault("LINKARR_DATA_DIR", "")
	if dataDir == "" {
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}

	cfg = &Config{
		Port:         getEnvOrDefault("LINKARR_PORT", "3091"),
		LogLevel:     getEnvOrDefault("LINKARR_LOG_LEVEL", "info"),
		DataDir:      dataDir,
		DatabasePath: getEnvOrDefault("LINKARR_DATABASE_PATH", filepath.Join(dataDir, "linkarr.db")),
		LogDir:       getEnvOrDefault("LINKARR_LOG_DIR", filepath.Join(dataDir, "logs")),

		WatchFolder: getEnvOrDefault("LINKARR_WATCH_FOLDER", "/media/downloads"),
		MediaRoot:   getEnvOrDefault("LINKARR_MEDIA_ROOT", "/media"),
		TVFolder:    getEnvOrDefault("LINKARR_TV_FOLDER", "TV"),
		MovieFolder: getEnvOrDefault("LINKARR_MOVIE_FOLDER", "Movies"),

		DryRun:      getEnvBool("LINKARR_DRY_RUN", false),
		SkipSamples: getEnvBool("LINKARR_SKIP_SAMPLES", true),
		MinFileSize: getEnvInt64("LINKARR_MIN_FILE_SIZE", 50*1024*1024),

		GracePeriod:    getEnvDuration("LINKARR_GRACE_PERIOD", 2*time.Minute),
		Workers:        getEnvInt("LINKARR_WORKERS", 3),
		RetryBaseDelay: getEnvDuration("LINKARR_RETRY_BASE_DELAY", 45*time.Second),
		RetryMaxDelay:  getEnvDuration("LINKARR_RETRY_MAX_DELAY", 30*time.Minute),
		MaxAttempts:    getEnvInt("LINKARR_MAX_ATTEMPTS", 30),

		RescanCron:  getEnvOrDefault("LINKARR_RESCAN_CRON", "@every 15m"),
		JanitorCron: getEnvOrDefault("LINKARR_JANITOR_CRON", "0 3 * * *"),

		TempSuffixes: getEnvList("LINKARR_TEMP_SUFFIXES",
			[]string{".part", ".crdownload", ".!ut", ".!qb", ".aria2", ".partial"}),
		VideoExtensions: getEnvList("LINKARR_VIDEO_EXTENSIONS",
			[]string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".webm"}),

		NotificationURLs:     getEnvList("LINKARR_NOTIFICATION_URLS", nil),
		NotificationThrottle: getEnvDuration("LINKARR_NOTIFICATION_THROTTLE", 0),

		DailyShowTitles: getEnvList("LINKARR_DAILY_SHOW_TITLES", []string{
			"the daily show",
			"the tonight show starring jimmy fallon",
			"late night with seth meyers",
			"jimmy kimmel live",
			"the late show with stephen colbert",
			"last week tonight with john oliver",
		}),
	}

	return cfg
}

// FlagOverrides carries command-line flag values that override environment config.
// Nil pointers mean "not set on the command line".
type FlagOverrides struct {
	Port         *string
	LogLevel     *string
	DataDir      *string
	DatabasePath *string
	WatchFolder  *string
	MediaRoot    *string
	DryRun       *bool
	Workers      *int
	GracePeriod  *time.Duration
	MaxAttempts  *int
}

// ApplyFlags overrides loaded configuration with any flags the user set.
func ApplyFlags(f FlagOverrides) {
	if cfg == nil {
		Load()
	}
	if f.Port != nil && *f.Port != "" {
		cfg.Port = *f.Port
	}
	if f.LogLevel != nil && *f.LogLevel != "" {
		cfg.LogLevel = *f.LogLevel
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.DataDir = *f.DataDir
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "linkarr.db")
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}
	if f.DatabasePath != nil && *f.DatabasePath != "" {
		cfg.DatabasePath = *f.DatabasePath
	}
	if f.WatchFolder != nil && *f.WatchFolder != "" {
		cfg.WatchFolder = *f.WatchFolder
	}
	if f.MediaRoot != nil && *f.MediaRoot != "" {
		cfg.MediaRoot = *f.MediaRoot
	}
	if f.DryRun != nil && *f.DryRun {
		cfg.DryRun = true
	}
	if f.Workers != nil && *f.Workers > 0 {
		cfg.Workers = *f.Workers
	}
	if f.GracePeriod != nil && *f.GracePeriod > 0 {
		cfg.GracePeriod = *f.GracePeriod
	}
	if f.MaxAttempts != nil && *f.MaxAttempts > 0 {
		cfg.MaxAttempts = *f.MaxAttempts
	}
}

// Get returns the loaded configuration, loading defaults if needed.
func Get() *Config {
	if cfg == nil {
		return Load()
	}
	return cfg
}

// TVRoot returns the absolute path of the TV library tree.
func (c *Config) TVRoot() string {
	return filepath.Join(c.MediaRoot, c.TVFolder)
}

// MovieRoot returns the absolute path of the movie library tree.
func (c *Config) MovieRoot() string {
	return filepath.Join(c.MediaRoot, c.MovieFolder)
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
