// Package config loads the pipeline configuration from catsdogs.yaml, a .env
// file and CATSDOGS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "catsdogs.yaml"

// EnvPrefix prefixes every environment override, e.g. CATSDOGS_TRAIN_EPOCHS.
const EnvPrefix = "CATSDOGS"

// DataConfig locates the raw dataset and the split output.
type DataConfig struct {
	RawDir    string         `mapstructure:"raw_dir" yaml:"raw_dir"`
	ZipPath   string         `mapstructure:"zip_path" yaml:"zip_path"`
	SplitsDir string         `mapstructure:"splits_dir" yaml:"splits_dir"`
	Seed      int64          `mapstructure:"seed" yaml:"seed"`
	Ratios    dataset.Ratios `mapstructure:"ratios" yaml:"ratios"`
}

// TrainConfig holds the training loop parameters.
type TrainConfig struct {
	ArtifactsDir  string  `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	Epochs        int     `mapstructure:"epochs" yaml:"epochs"`
	BatchSize     int     `mapstructure:"batch_size" yaml:"batch_size"`
	Bins          int     `mapstructure:"bins" yaml:"bins"`
	Augmentations int     `mapstructure:"augmentations" yaml:"augmentations"`
	Seed          int64   `mapstructure:"seed" yaml:"seed"`
	ImageSize     int     `mapstructure:"image_size" yaml:"image_size"`
	Loss          string  `mapstructure:"loss" yaml:"loss"`
	Alpha         float64 `mapstructure:"alpha" yaml:"alpha"`
	Experiment    string  `mapstructure:"experiment" yaml:"experiment"`
	RunName       string  `mapstructure:"run_name" yaml:"run_name,omitempty"`
	Device        string  `mapstructure:"device" yaml:"device"`
	Cache         bool    `mapstructure:"cache" yaml:"cache"`
}

// ServeConfig configures the HTTP serving wrapper.
type ServeConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	Mode           string        `mapstructure:"mode" yaml:"mode"`
	ModelPath      string        `mapstructure:"model_path" yaml:"model_path"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// RedisConfig configures the optional prediction cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Mode  string `mapstructure:"mode" yaml:"mode"`
}

// Config is the in-memory representation of catsdogs.yaml.
type Config struct {
	Data  DataConfig  `mapstructure:"data" yaml:"data"`
	Train TrainConfig `mapstructure:"train" yaml:"train"`
	Serve ServeConfig `mapstructure:"serve" yaml:"serve"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns the configuration written by catsdogs init.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			RawDir:    "data/raw",
			ZipPath:   "data/cats-and-dogs-classification-dataset.zip",
			SplitsDir: "data/splits",
			Seed:      dataset.DefaultSeed,
			Ratios:    dataset.DefaultRatios(),
		},
		Train: TrainConfig{
			ArtifactsDir:  "artifacts",
			Epochs:        8,
			BatchSize:     256,
			Bins:          8,
			Augmentations: 1,
			Seed:          dataset.DefaultSeed,
			ImageSize:     224,
			Loss:          "log_loss",
			Alpha:         1e-4,
			Experiment:    "cats-vs-dogs",
			Device:        "cpu",
		},
		Serve: ServeConfig{
			Addr:           ":8000",
			Mode:           "release",
			ModelPath:      "artifacts/model/model.bundle",
			MaxUploadBytes: 10 * 1024 * 1024,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
			Mode:  "development",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("data.raw_dir", d.Data.RawDir)
	v.SetDefault("data.zip_path", d.Data.ZipPath)
	v.SetDefault("data.splits_dir", d.Data.SplitsDir)
	v.SetDefault("data.seed", d.Data.Seed)
	v.SetDefault("data.ratios.train", d.Data.Ratios.Train)
	v.SetDefault("data.ratios.val", d.Data.Ratios.Val)
	v.SetDefault("data.ratios.test", d.Data.Ratios.Test)

	v.SetDefault("train.artifacts_dir", d.Train.ArtifactsDir)
	v.SetDefault("train.epochs", d.Train.Epochs)
	v.SetDefault("train.batch_size", d.Train.BatchSize)
	v.SetDefault("train.bins", d.Train.Bins)
	v.SetDefault("train.augmentations", d.Train.Augmentations)
	v.SetDefault("train.seed", d.Train.Seed)
	v.SetDefault("train.image_size", d.Train.ImageSize)
	v.SetDefault("train.loss", d.Train.Loss)
	v.SetDefault("train.alpha", d.Train.Alpha)
	v.SetDefault("train.experiment", d.Train.Experiment)
	v.SetDefault("train.run_name", d.Train.RunName)
	v.SetDefault("train.device", d.Train.Device)
	v.SetDefault("train.cache", d.Train.Cache)

	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.mode", d.Serve.Mode)
	v.SetDefault("serve.model_path", d.Serve.ModelPath)
	v.SetDefault("serve.max_upload_bytes", d.Serve.MaxUploadBytes)
	v.SetDefault("serve.read_timeout", d.Serve.ReadTimeout)
	v.SetDefault("serve.write_timeout", d.Serve.WriteTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.mode", d.Log.Mode)
}

// EnvName returns the environment variable overriding a dotted config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load builds the effective configuration. Precedence, lowest first:
// defaults, the YAML file at path (a missing file is not an error), .env in
// the working directory, then the process environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: invalid YAML in %s: %v", errs.ErrConfig, path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot stat config %s: %w", path, err)
	}

	dotenv, err := LoadDotEnv()
	if err != nil {
		return nil, err
	}
	for _, key := range v.AllKeys() {
		name := EnvName(key)
		if val, ok := dotenv[name]; ok && os.Getenv(name) == "" {
			v.Set(key, val)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: cannot decode config: %v", errs.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no stage can run with.
func (c *Config) Validate() error {
	if err := c.Data.Ratios.Validate(); err != nil {
		return err
	}
	t := c.Train
	switch {
	case t.Epochs <= 0:
		return fmt.Errorf("%w: train.epochs must be positive, got %d", errs.ErrConfig, t.Epochs)
	case t.BatchSize <= 0:
		return fmt.Errorf("%w: train.batch_size must be positive, got %d", errs.ErrConfig, t.BatchSize)
	case t.Bins <= 0:
		return fmt.Errorf("%w: train.bins must be positive, got %d", errs.ErrConfig, t.Bins)
	case t.ImageSize <= 0:
		return fmt.Errorf("%w: train.image_size must be positive, got %d", errs.ErrConfig, t.ImageSize)
	case t.Augmentations < 0:
		return fmt.Errorf("%w: train.augmentations must not be negative, got %d", errs.ErrConfig, t.Augmentations)
	case t.Alpha <= 0:
		return fmt.Errorf("%w: train.alpha must be positive, got %g", errs.ErrConfig, t.Alpha)
	case t.Loss != "log_loss" && t.Loss != "hinge":
		return fmt.Errorf("%w: train.loss must be log_loss or hinge, got %q", errs.ErrConfig, t.Loss)
	}
	if c.Serve.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: serve.max_upload_bytes must be positive", errs.ErrConfig)
	}
	return nil
}

// Save marshals cfg and writes it to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
