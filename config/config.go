// Package config manages application configuration.
package config

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ytaudio/internal/logging"
)

// Source modes for channel listing.
const (
	SourceAPI  = "api"
	SourceFeed = "feed"
)

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	// Key is the setting at fault, if any.
	Key string
	// Err describes the problem.
	Err error
}

// Error returns a string representation of the configuration error.
func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Err.Error()
	}
	return "config: " + e.Key + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(key, format string, args ...any) error {
	return &ConfigError{Key: key, Err: fmt.Errorf(format, args...)}
}

// SponsorBlock configures segment filtering during download.
type SponsorBlock struct {
	Enabled    bool     `json:"enabled"`
	Categories []string `json:"categories"`
	// Action is "remove" or "mark".
	Action string `json:"action"`
}

// Config holds all application configuration.
type Config struct {
	// APIKey is the YouTube Data API key.
	APIKey string `json:"api_key"`
	// ChannelIDs are the channels to poll, in order.
	ChannelIDs []string `json:"channel_ids"`
	// ChannelIDsFile lists one channel ID per line; used when ChannelIDs is empty.
	ChannelIDsFile string `json:"channel_ids_file"`
	// APIKeyFile is the legacy file holding the API key.
	APIKeyFile string `json:"api_key_file"`

	// TargetDirectory receives finished audio files. It must exist.
	TargetDirectory string `json:"target_directory"`
	// DownloadDirectory is the working directory for downloads.
	DownloadDirectory string `json:"download_directory"`
	// AudioExtensions are the file types moved to TargetDirectory.
	AudioExtensions []string `json:"audio_extensions"`

	// LookbackDays is how far back to look for uploads.
	LookbackDays int `json:"lookback_days"`
	// HistoryFile is the JSON download history.
	HistoryFile string `json:"history_file"`
	// HistoryMaxAgeDays is the retention window for history entries.
	HistoryMaxAgeDays int `json:"history_max_age_days"`

	// LogLevel is DEBUG, INFO, WARNING, ERROR or CRITICAL.
	LogLevel string `json:"log_level"`
	// LogFile additionally receives JSON logs when set.
	LogFile string `json:"log_file"`

	// SourceMode is "api" or "feed".
	SourceMode string `json:"source_mode"`
	// APIMaxResults caps the uploads listed per channel (1-50).
	APIMaxResults int64 `json:"api_max_results"`
	// APITimeout bounds each API call.
	APITimeout time.Duration `json:"api_timeout"`
	// APIRateLimitDelay is the pause between channel listings.
	APIRateLimitDelay time.Duration `json:"api_rate_limit_delay"`

	// DryRun synthesizes listings and skips downloads of real content.
	DryRun bool `json:"dry_run"`
	// MockVideoCount is the number of mock videos per channel in dry-run mode.
	MockVideoCount int `json:"mock_video_count"`

	// DownloadMaxRetries is the number of retries after a failed download.
	DownloadMaxRetries int `json:"download_max_retries"`
	// DownloadInitialBackoff is the first retry delay; it doubles each retry.
	DownloadInitialBackoff time.Duration `json:"download_initial_backoff"`
	// PermanentErrorPhrases extends the built-in permanent failure phrases.
	PermanentErrorPhrases []string `json:"permanent_error_phrases"`
	// SponsorBlock configures segment filtering.
	SponsorBlock SponsorBlock `json:"sponsorblock"`

	// YtdlpPath is the path to the yt-dlp executable.
	YtdlpPath string `json:"ytdlp_path"`
	// YtdlpTimeout bounds a single yt-dlp invocation.
	YtdlpTimeout time.Duration `json:"ytdlp_timeout"`
	// FFmpegPath is the path to the ffmpeg executable.
	FFmpegPath string `json:"ffmpeg_path"`

	// LockFile guards against concurrent runs. Defaults to ytaudio.lock
	// next to HistoryFile.
	LockFile string `json:"lock_file"`
	// MetricsTextfile receives Prometheus metrics after each run when set.
	MetricsTextfile string `json:"metrics_textfile"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		ChannelIDsFile:         "channel_ids",
		APIKeyFile:             "API_key",
		DownloadDirectory:      "downloads",
		AudioExtensions:        []string{".m4a", ".mp3", ".opus", ".webm", ".aac", ".ogg", ".wav", ".flac"},
		LookbackDays:           7,
		HistoryFile:            "download_history.json",
		HistoryMaxAgeDays:      90,
		LogLevel:               "INFO",
		SourceMode:             SourceAPI,
		APIMaxResults:          50,
		APITimeout:             30 * time.Second,
		APIRateLimitDelay:      time.Second,
		MockVideoCount:         2,
		DownloadMaxRetries:     3,
		DownloadInitialBackoff: 2 * time.Second,
		SponsorBlock: SponsorBlock{
			Categories: []string{"sponsor", "intro", "outro", "selfpromo"},
			Action:     "remove",
		},
		YtdlpPath:    "yt-dlp",
		YtdlpTimeout: 30 * time.Minute,
		FFmpegPath:   "ffmpeg",
	}
}

// LoadOptions selects configuration sources.
type LoadOptions struct {
	// ConfigFile is an explicit JSON config file. When empty, ytaudio.json
	// in the working directory or ~/.config/ytaudio/ytaudio.json is used if
	// present.
	ConfigFile string
	// EnvFile is an explicit .env file. When empty, .env is used if present.
	EnvFile string
	// DryRun forces dry-run mode.
	DryRun bool
}

// Load loads configuration from defaults, the config file, the .env file
// and environment variables, then validates it.
// Priority: env vars > .env > config file > defaults
func Load(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(opts.ConfigFile); err != nil {
		return nil, err
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if opts.DryRun {
		cfg.DryRun = true
	}

	if err := cfg.resolveFiles(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads an explicit config file, or ytaudio.json from the
// current or home directory. A missing default file is not an error.
func (c *Config) loadFromFile(explicit string) error {
	paths := []string{
		"ytaudio.json",
		filepath.Join(os.Getenv("HOME"), ".config", "ytaudio", "ytaudio.json"),
	}
	if explicit != "" {
		paths = []string{explicit}
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && explicit == "" {
				continue
			}
			return &ConfigError{Key: "config file", Err: err}
		}

		if err := json.Unmarshal(data, c); err != nil {
			return &ConfigError{Key: "config file", Err: fmt.Errorf("parse %s: %w", path, err)}
		}
		return nil
	}
	return nil
}

// loadEnvFile loads variables from a .env file without overriding the
// real environment.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &ConfigError{Key: "env file", Err: err}
	}
	return nil
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() error {
	setString("YOUTUBE_API_KEY", &c.APIKey)
	setList("CHANNEL_IDS", &c.ChannelIDs)
	setString("CHANNEL_IDS_FILE", &c.ChannelIDsFile)
	setString("TARGET_DIRECTORY", &c.TargetDirectory)
	setString("DOWNLOAD_DIRECTORY", &c.DownloadDirectory)
	setString("HISTORY_FILE", &c.HistoryFile)
	setString("LOG_FILE", &c.LogFile)
	setList("AUDIO_EXTENSIONS", &c.AudioExtensions)
	setList("PERMANENT_ERROR_PHRASES", &c.PermanentErrorPhrases)
	setList("SPONSORBLOCK_CATEGORIES", &c.SponsorBlock.Categories)
	setString("YTDLP_PATH", &c.YtdlpPath)
	setString("FFMPEG_PATH", &c.FFmpegPath)
	setString("LOCK_FILE", &c.LockFile)
	setString("METRICS_TEXTFILE", &c.MetricsTextfile)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("SOURCE_MODE"); v != "" {
		c.SourceMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SPONSORBLOCK_ACTION"); v != "" {
		c.SponsorBlock.Action = strings.ToLower(strings.TrimSpace(v))
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LOOKBACK_DAYS", &c.LookbackDays},
		{"HISTORY_MAX_AGE_DAYS", &c.HistoryMaxAgeDays},
		{"DOWNLOAD_MAX_RETRIES", &c.DownloadMaxRetries},
		{"DRY_RUN_MOCK_VIDEO_COUNT", &c.MockVideoCount},
	}
	for _, i := range ints {
		if err := setInt(i.key, i.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("API_MAX_RESULTS"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return configErr("API_MAX_RESULTS", "must be an integer, got %q", v)
		}
		c.APIMaxResults = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DOWNLOAD_INITIAL_BACKOFF", &c.DownloadInitialBackoff},
		{"API_RATE_LIMIT_DELAY", &c.APIRateLimitDelay},
		{"API_TIMEOUT", &c.APITimeout},
		{"YTDLP_TIMEOUT", &c.YtdlpTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.key, d.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"DRY_RUN", &c.DryRun},
		{"SPONSORBLOCK_ENABLED", &c.SponsorBlock.Enabled},
	}
	for _, b := range bools {
		if err := setBool(b.key, b.dst); err != nil {
			return err
		}
	}
	return nil
}

// resolveFiles fills the API key and channel list from their legacy files
// when the environment did not provide them.
func (c *Config) resolveFiles() error {
	if c.APIKey == "" && c.APIKeyFile != "" {
		data, err := os.ReadFile(expandPath(c.APIKeyFile))
		if err == nil {
			c.APIKey = strings.TrimSpace(string(data))
		} else if !os.IsNotExist(err) {
			return &ConfigError{Key: "API key file", Err: err}
		}
	}

	if len(c.ChannelIDs) == 0 && c.ChannelIDsFile != "" {
		ids, err := ReadChannelIDs(expandPath(c.ChannelIDsFile))
		if err != nil && !os.IsNotExist(err) {
			return &ConfigError{Key: "channel IDs file", Err: err}
		}
		c.ChannelIDs = ids
	}
	return nil
}

// ReadChannelIDs reads one channel ID per line, skipping blank lines and
// lines starting with '#'.
func ReadChannelIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

// Validate checks that configuration values are valid and consistent. It
// creates the download directory if needed.
func (c *Config) Validate() error {
	if c.SourceMode != SourceAPI && c.SourceMode != SourceFeed {
		return configErr("SOURCE_MODE", "must be %q or %q, got %q", SourceAPI, SourceFeed, c.SourceMode)
	}
	if c.APIKey == "" && c.SourceMode == SourceAPI && !c.DryRun {
		return configErr("YOUTUBE_API_KEY", "YouTube API key not found; set YOUTUBE_API_KEY or create %s", c.APIKeyFile)
	}
	if len(c.ChannelIDs) == 0 {
		return configErr("CHANNEL_IDS", "no channel IDs configured; set CHANNEL_IDS or add IDs to %s", c.ChannelIDsFile)
	}

	if c.TargetDirectory == "" {
		return configErr("TARGET_DIRECTORY", "is required")
	}
	c.TargetDirectory = expandPath(c.TargetDirectory)
	if fi, err := os.Stat(c.TargetDirectory); err != nil || !fi.IsDir() {
		return configErr("TARGET_DIRECTORY", "directory does not exist: %s", c.TargetDirectory)
	}

	c.DownloadDirectory = expandPath(c.DownloadDirectory)
	if err := os.MkdirAll(c.DownloadDirectory, 0755); err != nil {
		return configErr("DOWNLOAD_DIRECTORY", "create %s: %v", c.DownloadDirectory, err)
	}
	c.HistoryFile = expandPath(c.HistoryFile)
	c.LogFile = expandPath(c.LogFile)
	c.LockFile = expandPath(c.LockFile)
	c.MetricsTextfile = expandPath(c.MetricsTextfile)

	if c.LookbackDays < 1 {
		return configErr("LOOKBACK_DAYS", "must be positive, got %d", c.LookbackDays)
	}
	if c.HistoryMaxAgeDays < 1 {
		return configErr("HISTORY_MAX_AGE_DAYS", "must be positive, got %d", c.HistoryMaxAgeDays)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return configErr("LOG_LEVEL", "must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", c.LogLevel)
	}
	if c.APIMaxResults < 1 || c.APIMaxResults > 50 {
		return configErr("API_MAX_RESULTS", "must be between 1 and 50, got %d", c.APIMaxResults)
	}
	if c.APITimeout <= 0 {
		return configErr("API_TIMEOUT", "must be positive")
	}
	if c.APIRateLimitDelay < 0 {
		return configErr("API_RATE_LIMIT_DELAY", "must be non-negative")
	}
	if c.MockVideoCount < 0 {
		return configErr("DRY_RUN_MOCK_VIDEO_COUNT", "must be non-negative")
	}
	if c.DownloadMaxRetries < 0 {
		return configErr("DOWNLOAD_MAX_RETRIES", "must be non-negative, got %d", c.DownloadMaxRetries)
	}
	if c.DownloadInitialBackoff < 0 {
		return configErr("DOWNLOAD_INITIAL_BACKOFF", "must be non-negative")
	}
	if c.YtdlpTimeout <= 0 {
		return configErr("YTDLP_TIMEOUT", "must be positive")
	}
	if c.SponsorBlock.Action != "remove" && c.SponsorBlock.Action != "mark" {
		return configErr("SPONSORBLOCK_ACTION", "must be \"remove\" or \"mark\", got %q", c.SponsorBlock.Action)
	}
	if len(c.AudioExtensions) == 0 {
		return configErr("AUDIO_EXTENSIONS", "must not be empty")
	}
	return nil
}

// LockPath returns the lock file path.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(filepath.Dir(c.HistoryFile), "ytaudio.lock")
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return configErr(key, "must be an integer, got %q", v)
	}
	*dst = n
	return nil
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return configErr(key, "must be a boolean, got %q", v)
	}
	return nil
}

// setDuration accepts plain seconds ("2", "0.5") or a Go duration ("1m30s").
func setDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return configErr(key, "must be seconds or a duration, got %q", v)
	}
	*dst = d
	return nil
}

// expandPath replaces a leading "~" with the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
