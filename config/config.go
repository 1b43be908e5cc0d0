// Package config loads sitecopy settings from sitecopy.yaml, SITECOPY_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sitecopy/downloader"
	"sitecopy/logger"
)

const (
	EnvPrefix   = "SITECOPY"
	FileName    = "sitecopy"
	DefaultAddr = ":8000"
)

var (
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigLoadFailed = errors.New("failed to load configuration")
)

// ValidationError represents an error in configuration validation
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrConfigInvalid }

type Wget struct {
	Binary string
	Args   []string
}

type Serve struct {
	Addr string
}

type Config struct {
	CopyPath string
	LogFile  string
	OutLog   string
	URL      string
	DryRun   bool
	// TrackingParams is nil when unset so the processor defaults apply.
	TrackingParams []string
	Wget           Wget
	Serve          Serve
	Log            logger.Config
}

// Downloader returns the settings the copy action needs.
func (c *Config) Downloader() downloader.Config {
	return downloader.Config{
		URL:       c.URL,
		CopyPath:  c.CopyPath,
		LogFile:   c.LogFile,
		OutLog:    c.OutLog,
		Binary:    c.Wget.Binary,
		ExtraArgs: c.Wget.Args,
	}
}

// Validate checks values that would otherwise fail deep inside an action.
func (c *Config) Validate() error {
	if c.CopyPath == "" {
		return &ValidationError{Field: "copy_path", Value: c.CopyPath, Reason: "must not be empty"}
	}
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" {
			return &ValidationError{Field: "url", Value: c.URL, Reason: "must be an absolute http(s) URL"}
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return &ValidationError{Field: "log.format", Value: c.Log.Format, Reason: "must be console or json"}
	}
	return nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("copy_path", downloader.DefaultCopyPath)
	v.SetDefault("log_file", downloader.DefaultLogFile)
	v.SetDefault("out_log", downloader.DefaultOutLog)
	v.SetDefault("url", "")
	v.SetDefault("dry_run", false)
	v.SetDefault("wget.binary", downloader.DefaultBinary)
	v.SetDefault("wget.args", []string{})
	v.SetDefault("serve.addr", DefaultAddr)
	v.SetDefault("log.level", logger.DefaultLevel)
	v.SetDefault("log.format", logger.DefaultFormat)
}

// Setup prepares v to read configFile (or sitecopy.yaml in the working
// directory when empty), the environment and .env. A missing default config
// file is not an error.
func Setup(v *viper.Viper, configFile string) error {
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}
	return nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		CopyPath: v.GetString("copy_path"),
		LogFile:  v.GetString("log_file"),
		OutLog:   v.GetString("out_log"),
		URL:      v.GetString("url"),
		DryRun:   v.GetBool("dry_run"),
		Wget: Wget{
			Binary: v.GetString("wget.binary"),
			Args:   v.GetStringSlice("wget.args"),
		},
		Serve: Serve{Addr: v.GetString("serve.addr")},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if v.IsSet("tracking_params") {
		cfg.TrackingParams = v.GetStringSlice("tracking_params")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
