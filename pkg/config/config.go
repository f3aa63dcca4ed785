package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL      string
	WebSocketURL    string
	Environment     string
	RequestTimeout  time.Duration
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	TypingQuiet     time.Duration
	GuestCartPath   string
	HistoryPageSize int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		APIBaseURL:      getEnv("API_BASE_URL", "http://localhost:8080/api"),
		WebSocketURL:    getEnv("WS_URL", "ws://localhost:8080/ws"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		ReconnectBase:   getEnvAsDuration("RECONNECT_BASE", 5*time.Second),
		ReconnectMax:    getEnvAsDuration("RECONNECT_MAX", 60*time.Second),
		TypingQuiet:     getEnvAsDuration("TYPING_QUIET", time.Second),
		GuestCartPath:   getEnv("GUEST_CART_PATH", defaultGuestCartPath()),
		HistoryPageSize: getEnvAsInt("HISTORY_PAGE_SIZE", 50),
	}

	return config, nil
}

func defaultGuestCartPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return dir + "/shopsync"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
