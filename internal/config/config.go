package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration, read from the environment.
type Config struct {
	ListenAddr string

	RedisURL string
	FeedURL  string

	GTFSDataPath string
	GTFSRTURL    string
	KioskURL     string

	ActiveTTL       time.Duration
	StaleAfter      time.Duration
	ScheduleRefresh time.Duration
}

// Load reads configuration from .env and the environment.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:   getenvDefault("LISTEN_ADDR", ":3030"),
		RedisURL:     getenvDefault("REDIS_URL", "redis://127.0.0.1:6379/0"),
		FeedURL:      getenvDefault("FEED_URL", "https://rapidbus-socketio-avl.prasarana.com.my"),
		GTFSDataPath: getenvDefault("GTFS_DATA_PATH", "rapid_kl_data"),
		GTFSRTURL:    getenvDefault("GTFSRT_URL", "https://api.data.gov.my/gtfs-realtime/vehicle-position/prasarana?category=rapid-bus-kl"),
		KioskURL:     os.Getenv("KIOSK_URL"),
	}

	var err error
	if cfg.ActiveTTL, err = durationEnv("ACTIVE_TTL_SEC", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = durationEnv("STALE_AFTER_SEC", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.ScheduleRefresh, err = durationEnv("SCHEDULE_REFRESH_SEC", 5*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationEnv parses an environment variable holding whole seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
