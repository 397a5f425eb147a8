package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/cloudx-io/streamauction/core"
)

// DaemonConfig is everything the daemon reads from its environment.
type DaemonConfig struct {
	Auction core.Config

	MaxWorkers int

	// Exactly one listener is used: VsockPort inside an enclave, ListenAddr otherwise.
	ListenAddr string
	VsockPort  uint32

	// HTTPAddr serves the viewer API, the feed and metrics. Empty disables it.
	HTTPAddr string

	// JournalPath is the SQLite journal file. Empty keeps the journal in memory.
	JournalPath string
}

// loadConfig reads the daemon configuration from the environment, after loading envFile
// when it exists.
func loadConfig(envFile string) (*DaemonConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else {
			log.Printf("INFO: Loaded environment from %s", envFile)
		}
	}

	cfg := &DaemonConfig{}
	var err error

	addresses := []struct {
		key  string
		dest *common.Address
	}{
		{"AUCTION_HOST", &cfg.Auction.Host},
		{"AUCTION_AGREEMENT", &cfg.Auction.Agreement},
		{"AUCTION_ASSET", &cfg.Auction.Asset},
		{"AUCTION_OWNER", &cfg.Auction.Owner},
	}
	for _, a := range addresses {
		if *a.dest, err = getRequiredEnvAddress(a.key); err != nil {
			return nil, err
		}
	}

	holdSeconds, err := getRequiredEnvInt("AUCTION_HOLD_SECONDS")
	if err != nil {
		return nil, err
	}
	cfg.Auction.HoldDuration = time.Duration(holdSeconds) * time.Second

	step, err := getRequiredEnvInt("AUCTION_STEP_PERCENT")
	if err != nil {
		return nil, err
	}
	cfg.Auction.StepPercent = int64(step)

	if os.Getenv("AUCTION_NFT") != "" {
		if cfg.Auction.NFTContract, err = getRequiredEnvAddress("AUCTION_NFT"); err != nil {
			return nil, err
		}
		tokenID, err := getRequiredEnvInt("AUCTION_TOKEN_ID")
		if err != nil {
			return nil, err
		}
		if tokenID < 0 {
			return nil, fmt.Errorf("invalid value for AUCTION_TOKEN_ID: %d (must not be negative)", tokenID)
		}
		cfg.Auction.TokenID = uint64(tokenID)
	}

	if err := cfg.Auction.Validate(); err != nil {
		return nil, err
	}

	if cfg.MaxWorkers, err = getRequiredEnvInt("AUCTIOND_MAX_WORKERS"); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("invalid value for AUCTIOND_MAX_WORKERS: %d (must be at least 1)", cfg.MaxWorkers)
	}

	cfg.ListenAddr = os.Getenv("AUCTIOND_LISTEN_ADDR")
	if os.Getenv("AUCTIOND_VSOCK_PORT") != "" {
		port, err := getRequiredEnvInt("AUCTIOND_VSOCK_PORT")
		if err != nil {
			return nil, err
		}
		if port <= 0 {
			return nil, fmt.Errorf("invalid value for AUCTIOND_VSOCK_PORT: %d (must be positive)", port)
		}
		cfg.VsockPort = uint32(port)
	}
	if (cfg.ListenAddr == "") == (cfg.VsockPort == 0) {
		return nil, fmt.Errorf("exactly one of AUCTIOND_LISTEN_ADDR and AUCTIOND_VSOCK_PORT must be set")
	}

	cfg.HTTPAddr = os.Getenv("AUCTIOND_HTTP_ADDR")
	cfg.JournalPath = os.Getenv("AUCTIOND_JOURNAL_PATH")
	if cfg.JournalPath == "" {
		log.Printf("WARNING: AUCTIOND_JOURNAL_PATH not set, journal is kept in memory only")
	}

	return cfg, nil
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

func getRequiredEnvAddress(key string) (common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		return common.Address{}, fmt.Errorf("required environment variable %s is not set", key)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid value for %s: %s (must be a hex address)", key, value)
	}
	return common.HexToAddress(value), nil
}
