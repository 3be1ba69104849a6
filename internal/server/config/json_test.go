package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_dsn":       "postgres://u:p@db:5432/notevault",
		"upload_dir":         "/srv/vault/objects",
		"max_upload_size":    1048576,
		"max_user_storage":   10485760,
		"allowed_extensions": []string{".pdf", ".txt"},
		"compression":        false,
		"zstd_level":         9,
		"encryption_key":     "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
		"log_level":          "debug",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "postgres://u:p@db:5432/notevault", cfg.DatabaseDSN)
		assert.Equal(t, "/srv/vault/objects", cfg.UploadDir)
		assert.Equal(t, int64(1048576), cfg.MaxUploadSize)
		assert.Equal(t, int64(10485760), cfg.MaxUserStorage)
		assert.Equal(t, []string{".pdf", ".txt"}, cfg.AllowedExtensions)
		assert.False(t, cfg.Compression)
		assert.Equal(t, 9, cfg.ZstdLevel)
		assert.Equal(t, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", cfg.EncryptionKey)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("absent keys leave config untouched", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{
			"zstd_level": 3,
		})
		os.Args = []string{"testbin", "-config", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, 3, cfg.ZstdLevel, "present key must be applied")
		assert.Equal(t, "notevault.db", cfg.DatabaseDSN, "absent keys must keep defaults")
		assert.Equal(t, "uploads", cfg.UploadDir)
		assert.True(t, cfg.Compression)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			DatabaseDSN:    "keep.db",
			UploadDir:      "keep-dir",
			MaxUploadSize:  111,
			MaxUserStorage: 222,
			Compression:    true,
			ZstdLevel:      7,
			LogLevel:       "warn",
		}
		parseJson(cfg)

		assert.Equal(t, "keep.db", cfg.DatabaseDSN)
		assert.Equal(t, "keep-dir", cfg.UploadDir)
		assert.Equal(t, int64(111), cfg.MaxUploadSize)
		assert.Equal(t, int64(222), cfg.MaxUserStorage)
		assert.True(t, cfg.Compression)
		assert.Equal(t, 7, cfg.ZstdLevel)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
