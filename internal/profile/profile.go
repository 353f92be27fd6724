package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where parley stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your parley instance.
	InstanceURL string

	// CatchupWindow is the number of recent messages handed to a user who
	// joins a room without a delivery pointer. It bounds first-join replay.
	CatchupWindow int

	// Broker configuration. BrokerDriver selects the room broadcast
	// transport: "memory" (single node), "redis" or "kafka".
	BrokerDriver  string
	RedisAddr     string // PARLEY_REDIS_ADDR (default: localhost:6379)
	RedisPassword string // PARLEY_REDIS_PASSWORD
	RedisDB       int    // PARLEY_REDIS_DB (default: 0)
	KafkaBrokers  string // PARLEY_KAFKA_BROKERS (comma separated)
	KafkaTopic    string // PARLEY_KAFKA_TOPIC (default: parley-rooms)

	// KVDriver selects the delivery pointer store: "memory" or "redis".
	KVDriver string

	// AI configuration
	AIEnabled     bool   // PARLEY_AI_ENABLED
	AIBackendMode string // PARLEY_AI_BACKEND_MODE (tool, native, sdk; default: sdk)
	AIProvider    string // PARLEY_AI_PROVIDER (openai, deepseek, ollama; default: openai)
	AIAPIKey      string // PARLEY_AI_API_KEY
	AIBaseURL     string // PARLEY_AI_BASE_URL (default depends on provider)
	AIModel       string // PARLEY_AI_MODEL (default: gpt-4o-mini)
	AICodeModel   string // PARLEY_AI_CODE_MODEL (default: gpt-4o)

	// Web search configuration
	SearchAPIKey     string        // PARLEY_SEARCH_API_KEY
	SearchBaseURL    string        // PARLEY_SEARCH_BASE_URL
	SearchMaxResults int           // PARLEY_SEARCH_MAX_RESULTS (default: 5)
	SearchTimeout    time.Duration // PARLEY_SEARCH_TIMEOUT (default: 5s)
	SearchCooldown   time.Duration // PARLEY_SEARCH_COOLDOWN (default: 15m)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and the configured provider is reachable in principle.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIAPIKey != "" || p.AIProvider == "ollama")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from PARLEY_* environment variables.
// Empty values are skipped so defaults take effect.
func (p *Profile) FromEnv() {
	p.CatchupWindow = getIntEnvOrDefault("PARLEY_CATCHUP_WINDOW", 50)

	p.BrokerDriver = getEnvOrDefault("PARLEY_BROKER_DRIVER", "memory")
	p.RedisAddr = getEnvOrDefault("PARLEY_REDIS_ADDR", "localhost:6379")
	p.RedisPassword = os.Getenv("PARLEY_REDIS_PASSWORD")
	p.RedisDB = getIntEnvOrDefault("PARLEY_REDIS_DB", 0)
	p.KafkaBrokers = getEnvOrDefault("PARLEY_KAFKA_BROKERS", "localhost:9092")
	p.KafkaTopic = getEnvOrDefault("PARLEY_KAFKA_TOPIC", "parley-rooms")
	p.KVDriver = getEnvOrDefault("PARLEY_KV_DRIVER", "memory")

	p.AIEnabled = os.Getenv("PARLEY_AI_ENABLED") == "true"
	p.AIBackendMode = getEnvOrDefault("PARLEY_AI_BACKEND_MODE", "sdk")
	p.AIProvider = getEnvOrDefault("PARLEY_AI_PROVIDER", "openai")
	p.AIAPIKey = os.Getenv("PARLEY_AI_API_KEY")
	p.AIModel = getEnvOrDefault("PARLEY_AI_MODEL", "gpt-4o-mini")
	p.AICodeModel = getEnvOrDefault("PARLEY_AI_CODE_MODEL", "gpt-4o")

	switch p.AIProvider {
	case "deepseek":
		p.AIBaseURL = getEnvOrDefault("PARLEY_AI_BASE_URL", "https://api.deepseek.com")
	case "ollama":
		p.AIBaseURL = getEnvOrDefault("PARLEY_AI_BASE_URL", "http://localhost:11434/v1")
	default:
		p.AIBaseURL = getEnvOrDefault("PARLEY_AI_BASE_URL", "https://api.openai.com/v1")
	}

	p.SearchAPIKey = os.Getenv("PARLEY_SEARCH_API_KEY")
	p.SearchBaseURL = getEnvOrDefault("PARLEY_SEARCH_BASE_URL", "https://api.tavily.com")
	p.SearchMaxResults = getIntEnvOrDefault("PARLEY_SEARCH_MAX_RESULTS", 5)
	p.SearchTimeout = getDurationEnvOrDefault("PARLEY_SEARCH_TIMEOUT", 5*time.Second)
	p.SearchCooldown = getDurationEnvOrDefault("PARLEY_SEARCH_COOLDOWN", 15*time.Minute)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/parley"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("parley_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.CatchupWindow <= 0 {
		p.CatchupWindow = 50
	}

	return nil
}
