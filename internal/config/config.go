// Package config loads runtime settings for carnet-tools from defaults, an
// optional config.yaml, and CARNET_* environment variables (later sources win).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// On-disk layout below DataDir.
const (
	DatabaseFile = "codigos_barras.db"
	ImagesDir    = "codigos_generados"
	CarnetsDir   = "carnets"
	BackupsDir   = "backups"
	LogsDir      = "logs"
)

// Config holds all runtime configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Backup struct {
		Retention int `mapstructure:"retention" validate:"min=1"`
	} `mapstructure:"backup"`

	Barcode struct {
		Format    string `mapstructure:"format" validate:"oneof=Code128 EAN13 EAN8 Code39"`
		CaptionPx int    `mapstructure:"caption_px" validate:"min=10"`
	} `mapstructure:"barcode"`

	Render struct {
		Width       int           `mapstructure:"width" validate:"min=1"`
		Height      int           `mapstructure:"height" validate:"min=1"`
		PNGDPI      int           `mapstructure:"png_dpi" validate:"min=72"`
		PDFDPI      int           `mapstructure:"pdf_dpi" validate:"min=72"`
		LoadTimeout time.Duration `mapstructure:"load_timeout" validate:"gt=0"`
		ChromePath  string        `mapstructure:"chrome_path"`
	} `mapstructure:"render"`

	OCR struct {
		Similarity       float64 `mapstructure:"similarity" validate:"gt=0,lte=1"`
		Languages        string  `mapstructure:"languages" validate:"required"`
		FallbackLanguage string  `mapstructure:"fallback_language" validate:"required"`
		RetriesSingle    int     `mapstructure:"retries_single" validate:"min=1"`
		RetriesBatch     int     `mapstructure:"retries_batch" validate:"min=1"`
		TessdataPrefix   string  `mapstructure:"tessdata_prefix"`
	} `mapstructure:"ocr"`
}

// Load builds a Config. A missing config.yaml is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CARNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("backup.retention", 10)
	v.SetDefault("barcode.format", "Code128")
	v.SetDefault("barcode.caption_px", 50)
	// ID-1 card (54 x 85.6 mm) at 300 DPI.
	v.SetDefault("render.width", 637)
	v.SetDefault("render.height", 1013)
	v.SetDefault("render.png_dpi", 600)
	v.SetDefault("render.pdf_dpi", 1200)
	v.SetDefault("render.load_timeout", 5*time.Second)
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("ocr.similarity", 0.65)
	v.SetDefault("ocr.languages", "spa+eng")
	v.SetDefault("ocr.fallback_language", "spa")
	v.SetDefault("ocr.retries_single", 3)
	v.SetDefault("ocr.retries_batch", 2)
	v.SetDefault("ocr.tessdata_prefix", "")
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Path helpers for the data layout.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, DatabaseFile) }
func (c *Config) ImagesPath() string   { return filepath.Join(c.DataDir, ImagesDir) }
func (c *Config) CarnetsPath() string  { return filepath.Join(c.DataDir, CarnetsDir) }
func (c *Config) BackupsPath() string  { return filepath.Join(c.DataDir, BackupsDir) }
func (c *Config) LogsPath() string     { return filepath.Join(c.DataDir, LogsDir) }

// EnsureLayout creates every directory of the data layout.
func (c *Config) EnsureLayout() error {
	for _, dir := range []string{c.DataDir, c.ImagesPath(), c.CarnetsPath(), c.BackupsPath(), c.LogsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}
