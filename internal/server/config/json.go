package config

import (
	"encoding/json"
	"os"

	"github.com/mosaicedu/notevault/internal/flagx"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. Scalar fields are pointers so that absent keys leave the target
// Config untouched; after unmarshalling, present values are copied into the
// runtime Config.
type JsonConfig struct {
	DatabaseDSN          *string  `json:"database_dsn"`
	UploadDir            *string  `json:"upload_dir"`
	MaxUploadSize        *int64   `json:"max_upload_size"`
	MaxUserStorage       *int64   `json:"max_user_storage"`
	AllowedExtensions    []string `json:"allowed_extensions"`
	Compression          *bool    `json:"compression"`
	ZstdLevel            *int     `json:"zstd_level"`
	EncryptionKey        *string  `json:"encryption_key"`
	EncryptionPassphrase *string  `json:"encryption_passphrase"`
	EncryptionSalt       *string  `json:"encryption_salt"`
	LogLevel             *string  `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a deployment that names a
// config file wants that file honored, not silently skipped.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.UploadDir != nil {
		config.UploadDir = *c.UploadDir
	}
	if c.MaxUploadSize != nil {
		config.MaxUploadSize = *c.MaxUploadSize
	}
	if c.MaxUserStorage != nil {
		config.MaxUserStorage = *c.MaxUserStorage
	}
	if c.AllowedExtensions != nil {
		config.AllowedExtensions = c.AllowedExtensions
	}
	if c.Compression != nil {
		config.Compression = *c.Compression
	}
	if c.ZstdLevel != nil {
		config.ZstdLevel = *c.ZstdLevel
	}
	if c.EncryptionKey != nil {
		config.EncryptionKey = *c.EncryptionKey
	}
	if c.EncryptionPassphrase != nil {
		config.EncryptionPassphrase = *c.EncryptionPassphrase
	}
	if c.EncryptionSalt != nil {
		config.EncryptionSalt = *c.EncryptionSalt
	}
	if c.LogLevel != nil {
		config.LogLevel = *c.LogLevel
	}
}
