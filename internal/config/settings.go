package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/handiism/photo-mirror/internal/engine"
	ioutils "github.com/handiism/photo-mirror/internal/io"
	"github.com/handiism/photo-mirror/internal/transfer"
)

const (
	// DefaultConfigPath is where the CLI looks for settings by default.
	DefaultConfigPath = "~/.photo-mirror/config.yaml"

	// EnvPrefix prefixes environment overrides, e.g. PHOTOMIRROR_SYNC_MAX_CONCURRENT_TRANSFERS.
	EnvPrefix = "PHOTOMIRROR"
)

// Backend names accepted in destination.backend.
const (
	BackendYandex = "yandex"
	BackendS3     = "s3"
)

// Settings holds all configuration options.
type Settings struct {
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Manifest    ManifestConfig    `mapstructure:"manifest"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SourceConfig configures the photo catalog API.
type SourceConfig struct {
	Token             string        `mapstructure:"token"`
	APIURL            string        `mapstructure:"api_url"`
	APIVersion        string        `mapstructure:"api_version"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	PageSize          int           `mapstructure:"page_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// DestinationConfig selects and configures the store photos are mirrored into.
type DestinationConfig struct {
	Backend string       `mapstructure:"backend"` // yandex, s3
	Root    string       `mapstructure:"root"`    // folder all account folders live under
	Yandex  YandexConfig `mapstructure:"yandex"`
	S3      S3Config     `mapstructure:"s3"`
}

// YandexConfig configures the Yandex Disk REST API.
type YandexConfig struct {
	Token             string        `mapstructure:"token"`
	APIURL            string        `mapstructure:"api_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Bucket    string        `mapstructure:"bucket"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Region    string        `mapstructure:"region"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	Timeout   time.Duration `mapstructure:"timeout"` // per source download
}

// SyncConfig tunes reconciliation and verification.
type SyncConfig struct {
	MaxConcurrentTransfers int           `mapstructure:"max_concurrent_transfers"`
	RetryBudget            int           `mapstructure:"retry_budget"`
	RetryCooldown          float64       `mapstructure:"retry_cooldown"` // seconds
	RetryExponent          float64       `mapstructure:"retry_exponent"`
	VerifyAttempts         int           `mapstructure:"verify_attempts"`
	VerifyInterval         time.Duration `mapstructure:"verify_interval"`
	VerifyTimeout          time.Duration `mapstructure:"verify_timeout"`
	DefaultCount           string        `mapstructure:"default_count"`
}

// ManifestConfig says where manifests are written.
type ManifestConfig struct {
	Dir string `mapstructure:"dir"`
}

// HistoryConfig says where run history is kept.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
	Keep int    `mapstructure:"keep"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		Source: SourceConfig{
			APIURL:            "https://api.vk.com/method",
			APIVersion:        "5.131",
			RequestsPerSecond: 3,
			PageSize:          200,
			Timeout:           30 * time.Second,
		},
		Destination: DestinationConfig{
			Backend: BackendYandex,
			Root:    "",
			Yandex: YandexConfig{
				APIURL:            "https://cloud-api.yandex.net",
				RequestsPerSecond: 10,
				Timeout:           30 * time.Second,
			},
			S3: S3Config{
				Region:  "us-east-1",
				UseSSL:  true,
				Timeout: time.Minute,
			},
		},
		Sync: SyncConfig{
			MaxConcurrentTransfers: 4,
			RetryBudget:            1,
			RetryCooldown:          0.5,
			RetryExponent:          2.0,
			VerifyAttempts:         5,
			VerifyInterval:         2 * time.Second,
			VerifyTimeout:          2 * time.Minute,
			DefaultCount:           "5",
		},
		Manifest: ManifestConfig{
			Dir: "~/.photo-mirror/manifests",
		},
		History: HistoryConfig{
			Path: "~/.photo-mirror/history.db",
			Keep: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// values flattens s into viper keys. Durations are kept as strings so the
// written YAML reads "30s" rather than nanoseconds.
func (s *Settings) values() map[string]interface{} {
	return map[string]interface{}{
		"source.token":               s.Source.Token,
		"source.api_url":             s.Source.APIURL,
		"source.api_version":         s.Source.APIVersion,
		"source.requests_per_second": s.Source.RequestsPerSecond,
		"source.page_size":           s.Source.PageSize,
		"source.timeout":             s.Source.Timeout.String(),

		"destination.backend":                    s.Destination.Backend,
		"destination.root":                       s.Destination.Root,
		"destination.yandex.token":               s.Destination.Yandex.Token,
		"destination.yandex.api_url":             s.Destination.Yandex.APIURL,
		"destination.yandex.requests_per_second": s.Destination.Yandex.RequestsPerSecond,
		"destination.yandex.timeout":             s.Destination.Yandex.Timeout.String(),
		"destination.s3.endpoint":                s.Destination.S3.Endpoint,
		"destination.s3.bucket":                  s.Destination.S3.Bucket,
		"destination.s3.access_key":              s.Destination.S3.AccessKey,
		"destination.s3.secret_key":              s.Destination.S3.SecretKey,
		"destination.s3.region":                  s.Destination.S3.Region,
		"destination.s3.use_ssl":                 s.Destination.S3.UseSSL,
		"destination.s3.timeout":                 s.Destination.S3.Timeout.String(),

		"sync.max_concurrent_transfers": s.Sync.MaxConcurrentTransfers,
		"sync.retry_budget":             s.Sync.RetryBudget,
		"sync.retry_cooldown":           s.Sync.RetryCooldown,
		"sync.retry_exponent":           s.Sync.RetryExponent,
		"sync.verify_attempts":          s.Sync.VerifyAttempts,
		"sync.verify_interval":          s.Sync.VerifyInterval.String(),
		"sync.verify_timeout":           s.Sync.VerifyTimeout.String(),
		"sync.default_count":            s.Sync.DefaultCount,

		"manifest.dir": s.Manifest.Dir,

		"history.path": s.History.Path,
		"history.keep": s.History.Keep,

		"logging.level":  s.Logging.Level,
		"logging.format": s.Logging.Format,
	}
}

// newViper returns a viper instance reading from fs with defaults and
// environment overrides registered.
func newViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")

	for key, val := range DefaultSettings().values() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Token variables used by earlier tooling.
	_ = v.BindEnv("source.token", EnvPrefix+"_SOURCE_TOKEN", "VK_TOKEN")
	_ = v.BindEnv("destination.yandex.token", EnvPrefix+"_DESTINATION_YANDEX_TOKEN", "YD_TOKEN")

	return v
}

// Load reads settings from a YAML file on the OS filesystem.
func Load(path string) (*Settings, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads settings from a YAML file on fs. A missing file yields the
// defaults; environment variables override both. Paths starting with "~"
// are expanded.
func LoadFs(fs afero.Fs, path string) (*Settings, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	v := newViper(fs)

	ok, err := ioutils.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if ok {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := DefaultSettings()
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := settings.expandPaths(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save writes settings to a YAML file on the OS filesystem.
func (s *Settings) Save(path string) error {
	return s.SaveFs(afero.NewOsFs(), path)
}

// SaveFs writes settings to a YAML file on fs, creating parent directories.
func (s *Settings) SaveFs(fs afero.Fs, path string) error {
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := ioutils.EnsureDir(fs, filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	for key, val := range s.values() {
		v.Set(key, val)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (s *Settings) Validate() error {
	switch s.Destination.Backend {
	case BackendYandex:
		if s.Destination.Yandex.APIURL == "" {
			return fmt.Errorf("destination.yandex.api_url is required")
		}
	case BackendS3:
		if s.Destination.S3.Endpoint == "" {
			return fmt.Errorf("destination.s3.endpoint is required")
		}
		if s.Destination.S3.Bucket == "" {
			return fmt.Errorf("destination.s3.bucket is required")
		}
	default:
		return fmt.Errorf("destination.backend must be %q or %q, got %q", BackendYandex, BackendS3, s.Destination.Backend)
	}

	if s.Source.APIURL == "" {
		return fmt.Errorf("source.api_url is required")
	}
	if s.Source.PageSize < 1 || s.Source.PageSize > 1000 {
		return fmt.Errorf("source.page_size must be between 1 and 1000, got %d", s.Source.PageSize)
	}
	if s.Sync.MaxConcurrentTransfers < 1 {
		return fmt.Errorf("sync.max_concurrent_transfers must be at least 1, got %d", s.Sync.MaxConcurrentTransfers)
	}
	if s.Sync.RetryBudget < 0 || s.Sync.RetryBudget > 1 {
		return fmt.Errorf("sync.retry_budget must be 0 or 1, got %d", s.Sync.RetryBudget)
	}
	if s.Sync.VerifyAttempts < 1 {
		return fmt.Errorf("sync.verify_attempts must be at least 1, got %d", s.Sync.VerifyAttempts)
	}
	if _, err := transfer.ParseCap(s.Sync.DefaultCount); err != nil {
		return fmt.Errorf("sync.default_count: %w", err)
	}
	switch s.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", s.Logging.Format)
	}
	return nil
}

// ToEngineOptions converts settings to engine.Options.
func (s *Settings) ToEngineOptions() engine.Options {
	return engine.Options{
		Transfer: transfer.Options{
			MaxConcurrent:  s.Sync.MaxConcurrentTransfers,
			RetryBudget:    s.Sync.RetryBudget,
			RetryCooldown:  s.Sync.RetryCooldown,
			RetryExponent:  s.Sync.RetryExponent,
			VerifyAttempts: s.Sync.VerifyAttempts,
			VerifyInterval: s.Sync.VerifyInterval,
		},
		VerifyTimeout: s.Sync.VerifyTimeout,
		Root:          s.Destination.Root,
	}
}

func (s *Settings) expandPaths() error {
	var err error
	if s.Manifest.Dir, err = ExpandPath(s.Manifest.Dir); err != nil {
		return err
	}
	if s.History.Path, err = ExpandPath(s.History.Path); err != nil {
		return err
	}
	return nil
}

// ExpandPath expands a leading "~" to the user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return os.ExpandEnv(expanded), nil
}
