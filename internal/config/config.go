package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

var (
	dataDirFlag = flag.String("data-dir", "", "override LSMKV_DATA_DIR")
	portFlag    = flag.Int("port", 0, "override LSMKV_PORT")
)

// Config is the engine's runtime configuration: lsm.Options plus the
// server-facing knobs (port, admin port) that sit outside the
// storage engine's own concerns.
type Config struct {
	lsm.Options
	ServerPort int
	AdminPort  int
}

// Load reads .env (if present) via godotenv, then environment
// variables, then applies any -data-dir/-port flag overrides, and
// finally fills in engine defaults through lsm.Options.WithDefaults.
func Load() Config {
	godotenv.Load(".env")

	cfg := Config{
		Options: lsm.Options{
			Dir:                    envOr("LSMKV_DATA_DIR", "./data"),
			MemtableThresholdBytes: envInt64("LSMKV_MEMTABLE_THRESHOLD_BYTES", 0),
			CacheSize:              envInt("LSMKV_CACHE_SIZE", 0),
			BloomFPRate:            envFloat("LSMKV_BLOOM_FP_RATE", 0),
			L0Trigger:              envInt("LSMKV_L0_TRIGGER", 0),
			Compression:            envOr("LSMKV_COMPRESSION", ""),
		},
		ServerPort: envInt("LSMKV_PORT", 6380),
		AdminPort:  envInt("LSMKV_ADMIN_PORT", 6381),
	}

	flag.Parse()
	if *dataDirFlag != "" {
		cfg.Dir = *dataDirFlag
	}
	if *portFlag != 0 {
		cfg.ServerPort = *portFlag
	}

	cfg.Options = cfg.Options.WithDefaults()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
