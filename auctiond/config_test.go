package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

var configKeys = []string{
	"AUCTION_HOST", "AUCTION_AGREEMENT", "AUCTION_ASSET", "AUCTION_OWNER",
	"AUCTION_HOLD_SECONDS", "AUCTION_STEP_PERCENT", "AUCTION_NFT", "AUCTION_TOKEN_ID",
	"AUCTIOND_MAX_WORKERS", "AUCTIOND_LISTEN_ADDR", "AUCTIOND_VSOCK_PORT",
	"AUCTIOND_HTTP_ADDR", "AUCTIOND_JOURNAL_PATH",
}

func setValidEnv(t *testing.T) {
	t.Helper()
	// t.Setenv restores the original value; unsetting lets an env file fill the key in.
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("AUCTION_HOST", "0x00000000000000000000000000000000000000f1")
	t.Setenv("AUCTION_AGREEMENT", "0x00000000000000000000000000000000000000f2")
	t.Setenv("AUCTION_ASSET", "0x00000000000000000000000000000000000000f3")
	t.Setenv("AUCTION_OWNER", ownerAddr.Hex())
	t.Setenv("AUCTION_HOLD_SECONDS", "86400")
	t.Setenv("AUCTION_STEP_PERCENT", "10")
	t.Setenv("AUCTIOND_MAX_WORKERS", "8")
	t.Setenv("AUCTIOND_LISTEN_ADDR", "127.0.0.1:5000")
}

func TestLoadConfig(t *testing.T) {
	setValidEnv(t)
	t.Setenv("AUCTION_NFT", "0x00000000000000000000000000000000000000f4")
	t.Setenv("AUCTION_TOKEN_ID", "7")
	t.Setenv("AUCTIOND_HTTP_ADDR", ":8080")

	cfg, err := loadConfig("")
	assert.NoError(t, err)
	check.Equal(t, ownerAddr, cfg.Auction.Owner)
	check.Equal(t, 24*time.Hour, cfg.Auction.HoldDuration)
	check.Equal(t, int64(10), cfg.Auction.StepPercent)
	check.Equal(t, uint64(7), cfg.Auction.TokenID)
	check.Equal(t, 8, cfg.MaxWorkers)
	check.Equal(t, "127.0.0.1:5000", cfg.ListenAddr)
	check.Equal(t, uint32(0), cfg.VsockPort)
	check.Equal(t, ":8080", cfg.HTTPAddr)
	check.Equal(t, "", cfg.JournalPath)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	setValidEnv(t)
	t.Setenv("AUCTIOND_LISTEN_ADDR", "")

	envFile := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, os.WriteFile(envFile, []byte("AUCTIOND_VSOCK_PORT=5005\n"), 0o600))

	cfg, err := loadConfig(envFile)
	assert.NoError(t, err)
	check.Equal(t, uint32(5005), cfg.VsockPort)
	check.Equal(t, "", cfg.ListenAddr)

	// A missing file is not an error.
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	check.NoError(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name:      "missing owner",
			env:       map[string]string{"AUCTION_OWNER": ""},
			errSubstr: "AUCTION_OWNER is not set",
		},
		{
			name:      "owner is not an address",
			env:       map[string]string{"AUCTION_OWNER": "alice"},
			errSubstr: "must be a hex address",
		},
		{
			name:      "hold is not a number",
			env:       map[string]string{"AUCTION_HOLD_SECONDS": "1d"},
			errSubstr: "must be a valid integer",
		},
		{
			name:      "hold too short",
			env:       map[string]string{"AUCTION_HOLD_SECONDS": "0"},
			errSubstr: "hold duration",
		},
		{
			name:      "no workers",
			env:       map[string]string{"AUCTIOND_MAX_WORKERS": "0"},
			errSubstr: "AUCTIOND_MAX_WORKERS",
		},
		{
			name:      "both listeners",
			env:       map[string]string{"AUCTIOND_VSOCK_PORT": "5005"},
			errSubstr: "exactly one of",
		},
		{
			name:      "no listener",
			env:       map[string]string{"AUCTIOND_LISTEN_ADDR": ""},
			errSubstr: "exactly one of",
		},
		{
			name:      "nft without token id",
			env:       map[string]string{"AUCTION_NFT": "0x00000000000000000000000000000000000000f4"},
			errSubstr: "AUCTION_TOKEN_ID is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg, err := loadConfig("")
			check.True(t, cfg == nil)
			assert.NotNil(t, err)
			check.True(t, strings.Contains(err.Error(), tt.errSubstr))
		})
	}
}
