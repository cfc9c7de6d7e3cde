// Package config assembles the service configuration from the environment,
// with verifier thresholds optionally overridden by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kapture/workchain-oracle/verify"
)

// Defaults for the deployed devnet contract.
const (
	DefaultRPCURL    = "https://api.devnet.solana.com"
	DefaultProgramID = "5BzzMPy2vJx6Spgcy6hsepQsdBdWAe9SmGvTqpssrk2D"
	DefaultTokenMint = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	DefaultPort      = 5001

	// DailyAttemptCap is one real submission plus one retry per caller.
	DailyAttemptCap = 2
)

// Config is the full service configuration surface.
type Config struct {
	RPCURL       string
	ProgramID    string
	TokenMint    string
	Port         int
	MongoURL     string
	KeypairPath  string
	AllowDemoKey bool
	IDLPath      string
	Thresholds   verify.Thresholds
}

// Load reads the environment. Malformed values are configuration errors
// that should halt startup, never silently fall back.
func Load() (Config, error) {
	cfg := Config{
		RPCURL:       envOr("ORACLE_RPC_URL", DefaultRPCURL),
		ProgramID:    envOr("ORACLE_PROGRAM_ID", DefaultProgramID),
		TokenMint:    envOr("ORACLE_TOKEN_MINT", DefaultTokenMint),
		Port:         DefaultPort,
		MongoURL:     os.Getenv("ORACLE_MONGO_URL"),
		KeypairPath:  os.Getenv("ORACLE_KEYPAIR_PATH"),
		AllowDemoKey: boolEnv("ORACLE_ALLOW_DEMO_KEY"),
		IDLPath:      os.Getenv("ORACLE_IDL_PATH"),
		Thresholds:   verify.DefaultThresholds(),
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return cfg, fmt.Errorf("config: invalid PORT %q", port)
		}
		cfg.Port = p
	}

	if path := os.Getenv("ORACLE_THRESHOLDS_FILE"); path != "" {
		t, err := loadThresholds(path)
		if err != nil {
			return cfg, err
		}
		cfg.Thresholds = t
	}

	return cfg, nil
}

func loadThresholds(path string) (verify.Thresholds, error) {
	t := verify.DefaultThresholds()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("config: reading thresholds %s: %w", path, err)
	}
	if err = yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("config: malformed thresholds %s: %w", path, err)
	}
	return t, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
