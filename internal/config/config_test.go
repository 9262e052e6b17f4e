package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-gallery/internal/auth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.IsType(t, auth.PlainText{}, cfg.Hasher())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
db_path: /tmp/g.db
password_hashing: bcrypt
client_ttl: 2h
thumbnail_cache: 64
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/g.db", cfg.DBPath)
	assert.Equal(t, 2*time.Hour, cfg.ClientTTL)
	assert.Equal(t, 64, cfg.ThumbnailCache)
	assert.IsType(t, auth.Bcrypt{}, cfg.Hasher())
	assert.Equal(t, "web/templates", cfg.TemplateDir, "unset fields keep defaults")
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: 1234\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadRejectsEmptyThumbnailCache(t *testing.T) {
	_, err := Load(writeConfig(t, "thumbnail_cache: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thumbnail_cache")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: \"9090\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("DB_PATH", "/data/env.db")
	t.Setenv("SECURE_COOKIE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "/data/env.db", cfg.DBPath)
	assert.True(t, cfg.SecureCookie)
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid db_driver")

	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("PASSWORD_HASHING", "md5")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown password mode")

	t.Setenv("PASSWORD_HASHING", "")
	t.Setenv("SECURE_COOKIE", "maybe")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECURE_COOKIE")
}
