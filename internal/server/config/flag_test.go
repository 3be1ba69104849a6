package config

import (
	"flag"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-d", "postgres://u:p@db:5432/notevault", "-o", "/srv/objects",
			"-m", "1048576", "-q", "5242880", "-x", ".pdf,.txt",
			"-z", "9", "-k", "aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00",
			"-l", "debug",
		}, expectPanic: false,
			expected: &Config{
				DatabaseDSN:       "postgres://u:p@db:5432/notevault",
				UploadDir:         "/srv/objects",
				MaxUploadSize:     1048576,
				MaxUserStorage:    5242880,
				AllowedExtensions: []string{".pdf", ".txt"},
				ZstdLevel:         9,
				EncryptionKey:     "aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00",
				LogLevel:          "debug",
			}},
		{name: "unknown flags are filtered out", args: []string{"cmd",
			"-d", "keeper.db", "-unknown", "value", "--также=игнорируется",
		}, expectPanic: false,
			expected: &Config{
				DatabaseDSN: "keeper.db",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}

func TestParseFlags_KeepsExistingWhenAbsent(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"cmd"}

	config := &Config{}
	config.LoadDefaults()
	parseFlags(config)

	assert.Equal(t, "notevault.db", config.DatabaseDSN)
	assert.Equal(t, []string{".pdf", ".png", ".jpg", ".jpeg", ".txt", ".md"}, config.AllowedExtensions)
	assert.Equal(t, 6, config.ZstdLevel)
}
