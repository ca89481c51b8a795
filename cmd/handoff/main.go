package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/visitly/handoff/internal/api"
	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/lockfile"
	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/records"
	"github.com/visitly/handoff/internal/responder"
	"github.com/visitly/handoff/internal/store"
	"github.com/visitly/handoff/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for handoff state data
	DefaultStateDir = "/var/lib/handoff"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "handoff.db"
)

func main() {
	// Load environment configuration first so DEBUG from .env reaches the logger
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Two instances sharing one state directory would each believe they hold
	// the single-claim guarantee; refuse to start if one is already running.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	recorderOpts := buildRecorderOptions(flags)
	responderOpts := buildResponderOptions(flags)
	apiOpts := buildAPIOptions(flags)
	runCfg := buildRunConfig()

	// Start the service
	slog.Info("Bootstrapping handoff orchestrator with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "recorder", len(recorderOpts), "responder", len(responderOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "redis_addr_set", *flags.redisAddr != "", "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, recorderOpts, responderOpts, apiOpts, runCfg); err != nil {
		slog.Error("Handoff orchestrator failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Handoff orchestrator exited successfully")
}

// Config holds environment configuration
type Config struct {
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	APIAddr       string
}

// Flags holds command line flag values
type Flags struct {
	redisAddr *string
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
}

// initializeLogger sets up structured logging, verbose when DEBUG is set
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("HANDOFF_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No HANDOFF_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("HANDOFF_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"HANDOFF_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		redisAddr: flag.String("redis-addr", config.RedisAddr, "Redis address for session state (overrides $REDIS_ADDR)"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for handoff data (overrides $HANDOFF_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for leads and transcripts (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"redisAddr_set", *flags.redisAddr != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.redisAddr != "" {
		slog.Debug("Redis address provided, configuring Redis store", "addr", *flags.redisAddr)
		storeOpts = append(storeOpts, store.WithRedisAddr(*flags.redisAddr))
		if password := os.Getenv("REDIS_PASSWORD"); password != "" {
			storeOpts = append(storeOpts, store.WithRedisPassword(password))
		}
	} else {
		slog.Debug("No Redis address provided, will use in-memory store")
	}
	storeOpts = append(storeOpts,
		store.WithSessionTTL(util.ParseDurationEnv("SESSION_TTL", models.DefaultSessionTTL)),
		store.WithConversationTTL(util.ParseDurationEnv("CONVERSATION_TTL", models.DefaultConversationTTL)),
		store.WithPendingTTL(util.ParseDurationEnv("PENDING_TTL", models.DefaultPendingTTL)),
		store.WithConnectionTTL(util.ParseDurationEnv("CONNECTION_TTL", models.DefaultConnectionTTL)),
	)
	return storeOpts
}

// buildRecorderOptions constructs lead and transcript recorder options
func buildRecorderOptions(flags Flags) []records.Option {
	var recorderOpts []records.Option
	if *flags.dbDSN != "" {
		recorderOpts = append(recorderOpts, records.WithDSN(*flags.dbDSN))
	}
	return recorderOpts
}

// buildResponderOptions constructs automated responder options
func buildResponderOptions(flags Flags) []responder.Option {
	var responderOpts []responder.Option
	if *flags.openaiKey != "" {
		responderOpts = append(responderOpts, responder.WithAPIKey(*flags.openaiKey))
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		responderOpts = append(responderOpts, responder.WithModel(model))
	}
	return responderOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// buildRunConfig constructs timer and policy settings from the environment
func buildRunConfig() api.RunConfig {
	return api.RunConfig{
		Cooldown: util.ParseDurationEnv("HANDOFF_COOLDOWN", models.DefaultCooldown),
		Coordinator: coordinator.Config{
			HandoffTimeout:    util.ParseDurationEnv("HANDOFF_TIMEOUT", models.DefaultPendingTTL),
			InactivityTimeout: util.ParseDurationEnv("INACTIVITY_TIMEOUT", models.DefaultInactivityTimeout),
			WaitingInterval:   util.ParseDurationEnv("WAITING_INTERVAL", models.DefaultWaitingInterval),
			DurationInterval:  util.ParseDurationEnv("DURATION_INTERVAL", models.DefaultDurationInterval),
		},
	}
}
