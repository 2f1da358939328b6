// Package config loads node and client configuration from DV_*
// environment variables, with daemon flags layered on top by the
// commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults: the name server on port 9090, a 5s communication timeout
// and a 3-attempt client retry budget with a fixed 2s delay.
const (
	DefaultListenAddr   = "127.0.0.1:9101"
	DefaultRegistryAddr = "127.0.0.1:9090"
	DefaultDataDir      = "data"

	DefaultRPCTimeout    = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
)

// Config holds the runtime parameters shared by the daemons and the
// voter client.
type Config struct {
	// ReplicaID identifies the replica; required for votingd only.
	ReplicaID string
	// ListenAddr is the replica's HTTP listen address.
	ListenAddr string
	// RegistryAddr is the name server's address.
	RegistryAddr string
	// DataDir holds the per-replica state files and voters.json.
	DataDir string
	// LogLevel for the process-wide logger.
	LogLevel logrus.Level

	// RPCTimeout bounds every remote call (peer fan-out, probes, sync).
	RPCTimeout time.Duration
	// RetryAttempts is the client controller's bounded retry budget.
	RetryAttempts int
	// RetryDelay is the fixed sleep between client retry attempts.
	RetryDelay time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ReplicaID:    os.Getenv("DV_REPLICA_ID"),
		ListenAddr:   getEnvDefault("DV_LISTEN_ADDR", DefaultListenAddr),
		RegistryAddr: getEnvDefault("DV_REGISTRY_ADDR", DefaultRegistryAddr),
		DataDir:      getEnvDefault("DV_DATA_DIR", DefaultDataDir),
	}

	level, err := logrus.ParseLevel(getEnvDefault("DV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DV_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	cfg.RPCTimeout, err = getEnvDuration("DV_RPC_TIMEOUT", DefaultRPCTimeout)
	if err != nil {
		return nil, fmt.Errorf("DV_RPC_TIMEOUT: %w", err)
	}
	cfg.RetryAttempts, err = getEnvInt("DV_RETRY_ATTEMPTS", DefaultRetryAttempts)
	if err != nil {
		return nil, fmt.Errorf("DV_RETRY_ATTEMPTS: %w", err)
	}
	cfg.RetryDelay, err = getEnvDuration("DV_RETRY_DELAY", DefaultRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("DV_RETRY_DELAY: %w", err)
	}

	if cfg.RPCTimeout <= 0 {
		return nil, fmt.Errorf("DV_RPC_TIMEOUT: must be > 0")
	}
	if cfg.RetryAttempts <= 0 {
		return nil, fmt.Errorf("DV_RETRY_ATTEMPTS: must be > 0")
	}

	return cfg, nil
}

// SetupLogger applies the configured level to the process logger.
func SetupLogger(cfg *Config) {
	logrus.SetLevel(cfg.LogLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go syntax: 5s, 2m)", val)
	}
	return d, nil
}
