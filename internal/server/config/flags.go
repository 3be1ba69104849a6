package config

import (
	"flag"
	"os"

	"github.com/mosaicedu/notevault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   database DSN or SQLite file path
//	-o string   upload directory
//	-m int      max upload size, bytes
//	-q int      max per-owner storage, bytes
//	-x string   allowed extensions, comma-separated (".pdf,.txt")
//	-z int      zstd compression level (1–22)
//	-k string   encryption key, 64 hex chars
//	-l string   log level (debug|info|warn|error)
//
// The compression on/off switch is environment/JSON only; flags cover the
// knobs an operator changes per invocation.
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-o", "-m", "-q", "-x", "-z", "-k", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.UploadDir, "o", config.UploadDir, "upload directory")
	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "max upload size (bytes)")
	fs.Int64Var(&config.MaxUserStorage, "q", config.MaxUserStorage, "max per-owner storage (bytes)")

	extensions := fs.String("x", "", "allowed extensions, comma-separated")

	fs.IntVar(&config.ZstdLevel, "z", config.ZstdLevel, "zstd compression level")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "encryption key (hex)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *extensions != "" {
		config.AllowedExtensions = splitExtensions(*extensions)
	}
}
