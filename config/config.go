package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port      string
	Verbose   bool
	OutputDir string
	UploadDir string

	MaxConcurrency  int
	SessionTimeout  time.Duration
	ListingCap      int // per-postcode hard cap on listings
	MaxScrolls      int // bounded feed-scroll attempts before exhaustion
	MaxRetries      int
	DelayMin        time.Duration
	DelayMax        time.Duration
	EventBufferSize int

	ChromeBin string
	Headless  bool

	PostcodesAPIURL string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		Port:      getEnv("PORT", "5000"),
		Verbose:   getEnvBool("VERBOSE", false),
		OutputDir: getEnv("OUTPUT_DIR", "./static"),
		UploadDir: getEnv("UPLOAD_DIR", "./uploads"),

		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 2),
		SessionTimeout:  getEnvDuration("SESSION_TIMEOUT_MS", 180000),
		ListingCap:      getEnvInt("LISTING_CAP", 120),
		MaxScrolls:      getEnvInt("MAX_SCROLLS", 15),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		DelayMin:        getEnvDuration("DELAY_MIN_MS", 1000),
		DelayMax:        getEnvDuration("DELAY_MAX_MS", 2500),
		EventBufferSize: getEnvInt("EVENT_BUFFER_SIZE", 256),

		ChromeBin: getEnv("CHROME_BIN", ""),
		Headless:  getEnvBool("HEADLESS", true),

		PostcodesAPIURL: getEnv("POSTCODES_API_URL", "https://api.postcodes.io"),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "leads_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}
