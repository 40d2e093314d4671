// Package config loads mofgen settings from defaults, an optional YAML file,
// .env files and MOFGEN_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mofgen/internal/analysis"
	"mofgen/internal/blob"
	"mofgen/internal/core"
)

// EnvPrefix prefixes every environment override, e.g. MOFGEN_STORAGE_DRIVER.
const EnvPrefix = "MOFGEN"

// BlobDisabled as blob.driver turns archiving off.
const BlobDisabled = "none"

// Config is the complete runtime configuration.
type Config struct {
	Tools   ToolsConfig   `mapstructure:"tools"`
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
}

// ToolsConfig configures the three external analysis tools.
type ToolsConfig struct {
	Symmetry     ToolConfig `mapstructure:"symmetry"`
	Identifier   ToolConfig `mapstructure:"identifier"`
	PoreGeometry ToolConfig `mapstructure:"pore_geometry"`
}

// ToolConfig describes one executable. Options are rendered as --key value
// arguments on every run.
type ToolConfig struct {
	Command string              `mapstructure:"command"`
	Args    []string            `mapstructure:"args"`
	Env     []string            `mapstructure:"env"`
	Timeout time.Duration       `mapstructure:"timeout"`
	Options map[string][]string `mapstructure:"options"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// BlobConfig selects the archive backend. The driver "none" disables archiving.
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// CacheConfig bounds the tool result cache; zero disables it.
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Trace  bool   `mapstructure:"trace"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	QueueSize       int           `mapstructure:"queue_size"`
	JobRetention    int           `mapstructure:"job_retention"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration. configPath may be empty. envFiles default to
// ".env"; missing env files are ignored and never override the process
// environment.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths pins relative file locations to the working directory at load
// time. Tool runs change the process directory while other work is in flight.
func (c *Config) resolvePaths() error {
	for name, p := range map[string]*string{
		"storage.sqlite_path": &c.Storage.SQLitePath,
		"blob.fs_root":        &c.Blob.FSRoot,
	} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*p = abs
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	for _, tool := range []string{"symmetry", "identifier", "pore_geometry"} {
		v.SetDefault("tools."+tool+".command", "")
		v.SetDefault("tools."+tool+".args", []string{})
		v.SetDefault("tools."+tool+".env", []string{})
		v.SetDefault("tools."+tool+".timeout", time.Duration(0))
	}

	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.sqlite_path", "mofgen.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "archive")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.path_style", false)

	v.SetDefault("cache.size", core.DefaultCacheSize)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.trace", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.queue_size", 64)
	v.SetDefault("server.job_retention", 1024)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case BlobDisabled, blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	if c.Cache.Size < 0 {
		errs = append(errs, fmt.Errorf("cache.size: must be non-negative, got %d", c.Cache.Size))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: expected text or json, got %q", c.Log.Format))
	}
	for name, tool := range map[string]ToolConfig{
		analysis.ToolSymmetry:     c.Tools.Symmetry,
		analysis.ToolIdentifier:   c.Tools.Identifier,
		analysis.ToolPoreGeometry: c.Tools.PoreGeometry,
	} {
		if tool.Timeout < 0 {
			errs = append(errs, fmt.Errorf("tools.%s.timeout: must be non-negative", name))
		}
	}
	if c.Server.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("server.queue_size: must be positive, got %d", c.Server.QueueSize))
	}
	if c.Server.JobRetention < 1 {
		errs = append(errs, fmt.Errorf("server.job_retention: must be positive, got %d", c.Server.JobRetention))
	}
	return errors.Join(errs...)
}

// AnalysisCommand converts the tool settings for the analysis adapters.
func (t ToolConfig) AnalysisCommand() analysis.Command {
	return analysis.Command{
		Path:    t.Command,
		Args:    append([]string(nil), t.Args...),
		Timeout: t.Timeout,
		Env:     append([]string(nil), t.Env...),
	}
}

// AnalysisOptions returns the configured tool options.
func (t ToolConfig) AnalysisOptions() analysis.Options {
	if len(t.Options) == 0 {
		return nil
	}
	return analysis.Options(t.Options).Clone()
}

// AnalysisTools builds the command-backed analysis tools.
func (c *Config) AnalysisTools() core.Tools {
	return core.CommandTools(c.Tools.Symmetry.AnalysisCommand(), c.Tools.Identifier.AnalysisCommand(), c.Tools.PoreGeometry.AnalysisCommand())
}

// RecordStore returns the settings for core.OpenRecordStore.
func (c *Config) RecordStore() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// Archive returns the settings for blob.Open. ok is false when archiving is
// disabled.
func (c *Config) Archive() (cfg blob.Config, ok bool) {
	if c.Blob.Driver == BlobDisabled {
		return blob.Config{}, false
	}
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Prefix:          c.Blob.S3.Prefix,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}, true
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
