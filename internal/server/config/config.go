// Package config handles configuration for the vault engine, including
// defaults, JSON overlay, environment variables, and command-line flags.
// Later sources take precedence over earlier ones.
package config

// Config holds runtime settings for the notevault engine.
//
// Fields:
//   - DatabaseDSN: metadata store location. A postgres:// or postgresql://
//     DSN selects the pgx driver; anything else is treated as a SQLite file
//     path.
//   - UploadDir: directory holding object payloads (created 0700).
//   - MaxUploadSize / MaxUserStorage: per-object and per-owner byte caps.
//   - AllowedExtensions: logical filename extensions accepted for upload.
//   - Compression / ZstdLevel: whether new objects are compressed and at
//     which zstd level (1–22).
//   - EncryptionKey: hex-encoded AES-256 key; empty disables encryption for
//     new objects. EncryptionPassphrase/EncryptionSalt derive the key via
//     argon2id when no raw key is given.
//   - LogLevel: debug, info, warn, or error.
type Config struct {
	DatabaseDSN          string
	UploadDir            string
	MaxUploadSize        int64
	MaxUserStorage       int64
	AllowedExtensions    []string
	Compression          bool
	ZstdLevel            int
	EncryptionKey        string
	EncryptionPassphrase string
	EncryptionSalt       string
	LogLevel             string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: the empty encryption key means new objects are stored unencrypted;
// production deployments should always set one.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "notevault.db"
	c.UploadDir = "uploads"
	c.MaxUploadSize = 25 * 1024 * 1024
	c.MaxUserStorage = 200 * 1024 * 1024
	c.AllowedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".txt", ".md"}
	c.Compression = true
	c.ZstdLevel = 6
	c.EncryptionKey = ""
	c.EncryptionPassphrase = ""
	c.EncryptionSalt = ""
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
