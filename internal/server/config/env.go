package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// parseEnv overlays configuration from environment variables. The
// environment is the primary production surface; unset variables leave the
// current values in place. Malformed numeric or boolean values panic: a
// half-applied environment is worse than a crash at startup.
//
// Recognized variables:
//
//	DATABASE_DSN               metadata store DSN or SQLite path
//	UPLOAD_DIR                 object payload directory
//	MAX_UPLOAD_SIZE            per-object cap, bytes
//	MAX_USER_STORAGE           per-owner cap, bytes
//	ALLOWED_EXTENSIONS         comma-separated list, e.g. ".pdf,.png,.txt"
//	FILE_COMPRESSION           true/false
//	ZSTD_LEVEL                 zstd level 1–22
//	FILE_ENCRYPTION_KEY        64 hex chars (AES-256)
//	FILE_ENCRYPTION_PASSPHRASE argon2id passphrase (with salt below)
//	FILE_ENCRYPTION_SALT       argon2id salt
//	LOG_LEVEL                  debug|info|warn|error
func parseEnv(config *Config) {
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("UPLOAD_DIR"); ok {
		config.UploadDir = v
	}
	if v, ok := os.LookupEnv("MAX_UPLOAD_SIZE"); ok {
		config.MaxUploadSize = mustParseBytes("MAX_UPLOAD_SIZE", v)
	}
	if v, ok := os.LookupEnv("MAX_USER_STORAGE"); ok {
		config.MaxUserStorage = mustParseBytes("MAX_USER_STORAGE", v)
	}
	if v, ok := os.LookupEnv("ALLOWED_EXTENSIONS"); ok {
		config.AllowedExtensions = splitExtensions(v)
	}
	if v, ok := os.LookupEnv("FILE_COMPRESSION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Sprintf("FILE_COMPRESSION: %v", err))
		}
		config.Compression = b
	}
	if v, ok := os.LookupEnv("ZSTD_LEVEL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Sprintf("ZSTD_LEVEL: %v", err))
		}
		config.ZstdLevel = n
	}
	if v, ok := os.LookupEnv("FILE_ENCRYPTION_KEY"); ok {
		config.EncryptionKey = v
	}
	if v, ok := os.LookupEnv("FILE_ENCRYPTION_PASSPHRASE"); ok {
		config.EncryptionPassphrase = v
	}
	if v, ok := os.LookupEnv("FILE_ENCRYPTION_SALT"); ok {
		config.EncryptionSalt = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		config.LogLevel = v
	}
}

func mustParseBytes(name, v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	return n
}

// splitExtensions parses a comma-separated extension list, trimming
// whitespace and dropping empty items.
func splitExtensions(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
