// Package config loads and validates service configuration with
// ENV > file > defaults precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Maximum accepted payload sizes for the retrieval collaborator.
const (
	MaxPlaylistBytes = 100 * 1024 * 1024
	MaxEPGBytes      = 500 * 1024 * 1024
)

// Config holds every setting consumed by the pipeline. Values are resolved
// once at startup; the filtering core receives them as immutable inputs.
type Config struct {
	PlaylistURL string `yaml:"playlist_url"`
	EPGURL      string `yaml:"epg_url"`

	Bucket      string `yaml:"bucket"`
	PlaylistKey string `yaml:"playlist_key"`
	EPGKey      string `yaml:"epg_key"`
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`

	OutputDir string `yaml:"output_dir"`
	DryRun    bool   `yaml:"dry_run"`

	KeepCategories       []string `yaml:"keep_categories"`
	ExcludeNames         []string `yaml:"exclude_names"`
	EPGExcludeCategories []string `yaml:"epg_exclude_categories"`
	EPGExcludeChannelIDs []string `yaml:"epg_exclude_channel_ids"`

	PastRetentionDays              int `yaml:"past_retention_days"`
	FutureRetentionDays            int `yaml:"future_retention_days"`
	ExcludedChannelFutureLimitDays int `yaml:"excluded_channel_future_limit_days"`
	ExcludedChannelPastLimitHours  int `yaml:"excluded_channel_past_limit_hours"`

	Listen          string        `yaml:"listen"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`
}

// Defaults returns the built-in configuration the loader starts from.
func Defaults() Config {
	return Config{
		PlaylistURL:                    "https://your-provider.com/playlist.m3u",
		EPGURL:                         "https://your-epg-provider.com/epg.xml.gz",
		Bucket:                         "your-bucket-name",
		PlaylistKey:                    "playlist.m3u",
		EPGKey:                         "epg.xml.gz",
		Endpoint:                       "https://s3.amazonaws.com",
		Region:                         "us-east-1",
		OutputDir:                      "output",
		FutureRetentionDays:            10,
		ExcludedChannelFutureLimitDays: 2,
		ExcludedChannelPastLimitHours:  1,
		Listen:                         ":8080",
		RefreshInterval:                12 * time.Hour,
		LogLevel:                       "info",
		LogService:                     "m3ufilter",
	}
}

// Load resolves configuration with precedence ENV > file > defaults.
// path may be empty, in which case only defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.PlaylistURL = ParseString("M3U_SOURCE_URL", cfg.PlaylistURL)
	cfg.EPGURL = ParseString("EPG_SOURCE_URL", cfg.EPGURL)
	cfg.Bucket = ParseString("S3_BUCKET_NAME", cfg.Bucket)
	cfg.PlaylistKey = ParseString("S3_OBJECT_KEY", cfg.PlaylistKey)
	cfg.EPGKey = ParseString("S3_EPG_KEY", cfg.EPGKey)
	cfg.Endpoint = ParseString("S3_ENDPOINT_URL", cfg.Endpoint)
	cfg.Region = ParseString("S3_REGION", cfg.Region)
	cfg.OutputDir = ParseString("OUTPUT_DIR", cfg.OutputDir)
	cfg.DryRun = ParseBool("DRY_RUN", cfg.DryRun)
	cfg.KeepCategories = ParseList("CATEGORIES_TO_KEEP", cfg.KeepCategories)
	cfg.ExcludeNames = ParseList("CHANNEL_NAMES_TO_EXCLUDE", cfg.ExcludeNames)
	cfg.EPGExcludeCategories = ParseList("EPG_EXCLUDED_CATEGORIES", cfg.EPGExcludeCategories)
	cfg.EPGExcludeChannelIDs = ParseList("EPG_EXCLUDED_CHANNEL_IDS", cfg.EPGExcludeChannelIDs)
	cfg.PastRetentionDays = ParseInt("EPG_PAST_RETENTION_DAYS", cfg.PastRetentionDays)
	cfg.FutureRetentionDays = ParseInt("EPG_RETENTION_DAYS", cfg.FutureRetentionDays)
	cfg.ExcludedChannelFutureLimitDays = ParseInt("EPG_EXCLUDED_FUTURE_LIMIT_DAYS", cfg.ExcludedChannelFutureLimitDays)
	cfg.ExcludedChannelPastLimitHours = ParseInt("EPG_EXCLUDED_PAST_LIMIT_HOURS", cfg.ExcludedChannelPastLimitHours)
	cfg.Listen = ParseString("LISTEN_ADDR", cfg.Listen)
	cfg.RefreshInterval = ParseDuration("REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.LogLevel = ParseString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("LOG_SERVICE", cfg.LogService)

	return cfg, nil
}

// AllPlaylistKey derives the object key for the unfiltered playlist from the
// filtered one: "playlist.m3u" becomes "playlist-all.m3u".
func (c Config) AllPlaylistKey() string {
	return deriveKey(c.PlaylistKey, "all")
}

// FilteredEPGFile derives the local artifact name for the reduced EPG:
// "epg.xml.gz" becomes "epg-filtered.xml.gz".
func (c Config) FilteredEPGFile() string {
	base := c.EPGKey
	gz := strings.HasSuffix(base, ".gz")
	if gz {
		base = strings.TrimSuffix(base, ".gz")
	}
	base = deriveKey(base, "filtered")
	if gz {
		base += ".gz"
	}
	return base
}

// EPGRef builds the public URL of the reduced EPG object, injected into the
// filtered playlist header as its url-tvg reference.
func (c Config) EPGRef() string {
	host := c.Endpoint
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return fmt.Sprintf("https://%s.%s/%s", c.Bucket, host, c.EPGKey)
}

func deriveKey(key, suffix string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[:i] + "-" + suffix + key[i:]
	}
	return key + "-" + suffix
}

// Validate checks the configuration and returns every violation found.
// A non-empty result aborts the run before any filtering occurs.
func (c Config) Validate() []error {
	var errs []error

	if !isHTTPURL(c.PlaylistURL) {
		errs = append(errs, fmt.Errorf("M3U_SOURCE_URL must be a valid HTTP/HTTPS URL"))
	}
	if c.EPGURL != "" && !isHTTPURL(c.EPGURL) {
		errs = append(errs, fmt.Errorf("EPG_SOURCE_URL must be a valid HTTP/HTTPS URL"))
	}
	if l := len(c.Bucket); l < 3 || l > 63 {
		errs = append(errs, fmt.Errorf("S3_BUCKET_NAME must be between 3 and 63 characters"))
	}
	if err := validateKey("S3_OBJECT_KEY", c.PlaylistKey); err != nil {
		errs = append(errs, err)
	}
	if err := validateKey("S3_EPG_KEY", c.EPGKey); err != nil {
		errs = append(errs, err)
	}
	if !isHTTPURL(c.Endpoint) {
		errs = append(errs, fmt.Errorf("S3_ENDPOINT_URL must be a valid HTTP/HTTPS URL"))
	} else if u, err := url.Parse(c.Endpoint); err == nil && u.User != nil {
		errs = append(errs, fmt.Errorf("S3_ENDPOINT_URL should not contain credentials"))
	}
	if c.Region == "" {
		errs = append(errs, fmt.Errorf("S3_REGION must be specified"))
	}
	for name, v := range map[string]int{
		"EPG_PAST_RETENTION_DAYS":        c.PastRetentionDays,
		"EPG_RETENTION_DAYS":             c.FutureRetentionDays,
		"EPG_EXCLUDED_FUTURE_LIMIT_DAYS": c.ExcludedChannelFutureLimitDays,
		"EPG_EXCLUDED_PAST_LIMIT_HOURS":  c.ExcludedChannelPastLimitHours,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	return errs
}

func validateKey(name, key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%s must not be empty, contain '..' or start with '/'", name)
	}
	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
