// Package config loads server and CLI settings from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"photo-gallery/internal/auth"
	"photo-gallery/internal/storage"
)

// Config holds application settings.
type Config struct {
	Port            string        `yaml:"port"`
	DBPath          string        `yaml:"db_path"`
	DBDriver        string        `yaml:"db_driver"`
	TemplateDir     string        `yaml:"template_dir"`
	StaticDir       string        `yaml:"static_dir"`
	SecureCookie    bool          `yaml:"secure_cookie"`
	PasswordHashing string        `yaml:"password_hashing"`
	ClientTTL       time.Duration `yaml:"client_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ThumbnailSize   uint          `yaml:"thumbnail_size"`
	ThumbnailCache  int           `yaml:"thumbnail_cache"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:            "8080",
		DBPath:          "gallery.db",
		DBDriver:        storage.DefaultDriver,
		TemplateDir:     "web/templates",
		StaticDir:       "web/static",
		PasswordHashing: auth.ModePlain,
		ClientTTL:       30 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		MaxUploadBytes:  10 << 20,
		ThumbnailSize:   300,
		ThumbnailCache:  512,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("PASSWORD_HASHING"); v != "" {
		cfg.PasswordHashing = v
	}
	if v := os.Getenv("SECURE_COOKIE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SECURE_COOKIE %q: %w", v, err)
		}
		cfg.SecureCookie = b
	}
	return nil
}

// Validate checks that settings are usable.
func (c Config) Validate() error {
	valid := false
	for _, d := range storage.Drivers {
		if d == c.DBDriver {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("invalid db_driver %q: must be one of %v", c.DBDriver, storage.Drivers)
	}
	if _, err := auth.HasherFor(c.PasswordHashing); err != nil {
		return err
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.ClientTTL <= 0 {
		return errors.New("client_ttl must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}
	if c.ThumbnailCache <= 0 {
		return errors.New("thumbnail_cache must be positive")
	}
	return nil
}

// Hasher returns the password hasher selected by PasswordHashing.
func (c Config) Hasher() auth.Hasher {
	h, err := auth.HasherFor(c.PasswordHashing)
	if err != nil {
		return auth.PlainText{}
	}
	return h
}
