package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tgvault/vaultbot/internal/app"
	"github.com/tgvault/vaultbot/internal/lockfile"
	"github.com/tgvault/vaultbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VaultBot state data
	DefaultStateDir = "/var/lib/vaultbot"
	// DefaultDBFileName is the default SQLite database filename for the watchlist
	DefaultDBFileName = "vaultbot.db"
	// DefaultPollInterval is how often poll-only sources are checked
	DefaultPollInterval = time.Minute
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Validate required configuration before touching the network
	appCfg, err := buildAppConfig(flags)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Ensure the state directory exists and claim it
	if err := os.MkdirAll(appCfg.StateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", appCfg.StateDir)
		os.Exit(1)
	}
	lock, err := lockfile.AcquireLock(appCfg.StateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping VaultBot", "state_dir", appCfg.StateDir, "vault", appCfg.VaultChat)
	if err := app.Run(ctx, appCfg); err != nil {
		slog.Error("VaultBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("VaultBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	APIID          int
	APIHash        string
	Phone          string
	Password       string
	VaultChat      string
	TargetUsers    string
	TargetChannels string
	StateDir       string
	WatchlistDSN   string
	PollInterval   time.Duration
	PollFetchLimit int
	VaultScanDepth int
}

// Flags holds command line flag values
type Flags struct {
	apiID          *int
	apiHash        *string
	phone          *string
	password       *string
	vaultChat      *string
	targetUsers    *string
	targetChannels *string
	stateDir       *string
	dbDSN          *string
	pollInterval   *time.Duration
	pollFetchLimit *int
	vaultScanDepth *int
}

// initializeLogger sets up structured logging; debug level is opt-in
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("VAULTBOT_DEBUG", false) {
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
		APIID:          util.ParseIntEnv("API_ID", 0),
		APIHash:        os.Getenv("API_HASH"),
		Phone:          os.Getenv("PHONE_NUMBER"),
		Password:       os.Getenv("TELEGRAM_PASSWORD"),
		VaultChat:      os.Getenv("VAULT_CHAT_ID"),
		TargetUsers:    os.Getenv("TARGET_USER_IDS"),
		TargetChannels: os.Getenv("TARGET_CHANNELS"),
		StateDir:       os.Getenv("VAULTBOT_STATE_DIR"),
		WatchlistDSN:   os.Getenv("WATCHLIST_DB_DSN"),
		PollInterval:   util.ParseDurationEnv("POLL_INTERVAL", DefaultPollInterval),
		PollFetchLimit: util.ParseIntEnv("POLL_FETCH_LIMIT", 0),
		VaultScanDepth: util.ParseIntEnv("VAULT_SCAN_DEPTH", 0),
	}

	// Accept the singular form for a single watched user
	if config.TargetUsers == "" {
		config.TargetUsers = os.Getenv("TARGET_USER_ID")
	}

	if config.WatchlistDSN == "" {
		config.WatchlistDSN = os.Getenv("DATABASE_URL")
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No VAULTBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"API_ID_SET", config.APIID != 0,
		"API_HASH_SET", config.APIHash != "",
		"PHONE_NUMBER_SET", config.Phone != "",
		"VAULT_CHAT_ID", config.VaultChat,
		"TARGET_USER_IDS", config.TargetUsers,
		"TARGET_CHANNELS", config.TargetChannels,
		"VAULTBOT_STATE_DIR", config.StateDir,
		"WATCHLIST_DB_DSN_SET", config.WatchlistDSN != "",
		"POLL_INTERVAL", config.PollInterval)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		apiID:          flag.Int("api-id", config.APIID, "Telegram application id (overrides $API_ID)"),
		apiHash:        flag.String("api-hash", config.APIHash, "Telegram application hash (overrides $API_HASH)"),
		phone:          flag.String("phone", config.Phone, "account phone number (overrides $PHONE_NUMBER)"),
		password:       flag.String("password", config.Password, "two-factor password, if set (overrides $TELEGRAM_PASSWORD)"),
		vaultChat:      flag.String("vault", config.VaultChat, "vault chat id or @handle (overrides $VAULT_CHAT_ID)"),
		targetUsers:    flag.String("target-users", config.TargetUsers, "comma-separated watched user ids (overrides $TARGET_USER_IDS)"),
		targetChannels: flag.String("target-channels", config.TargetChannels, "comma-separated watched channel ids or @handles (overrides $TARGET_CHANNELS)"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for VaultBot data (overrides $VAULTBOT_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.WatchlistDSN, "watchlist database DSN (overrides $WATCHLIST_DB_DSN or $DATABASE_URL)"),
		pollInterval:   flag.Duration("poll-interval", config.PollInterval, "poll cycle interval (overrides $POLL_INTERVAL)"),
		pollFetchLimit: flag.Int("poll-fetch-limit", config.PollFetchLimit, "messages fetched per source per cycle (overrides $POLL_FETCH_LIMIT)"),
		vaultScanDepth: flag.Int("vault-scan-depth", config.VaultScanDepth, "vault history depth scanned on startup (overrides $VAULT_SCAN_DEPTH)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"apiID_set", *flags.apiID != 0,
		"vault", *flags.vaultChat,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"pollInterval", *flags.pollInterval)

	return flags
}

// buildAppConfig validates the parsed flags and assembles the engine config.
func buildAppConfig(flags Flags) (app.Config, error) {
	var missing []string
	if *flags.apiID == 0 {
		missing = append(missing, "API_ID")
	}
	if *flags.apiHash == "" {
		missing = append(missing, "API_HASH")
	}
	if *flags.phone == "" {
		missing = append(missing, "PHONE_NUMBER")
	}
	if *flags.vaultChat == "" {
		missing = append(missing, "VAULT_CHAT_ID")
	}
	if len(missing) > 0 {
		return app.Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	users, err := parseIDList(*flags.targetUsers)
	if err != nil {
		return app.Config{}, fmt.Errorf("invalid TARGET_USER_IDS: %w", err)
	}

	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", dsn)
	}

	return app.Config{
		APIID:          *flags.apiID,
		APIHash:        *flags.apiHash,
		Phone:          *flags.phone,
		Password:       *flags.password,
		VaultChat:      *flags.vaultChat,
		StateDir:       *flags.stateDir,
		WatchlistDSN:   dsn,
		PollInterval:   *flags.pollInterval,
		PollFetchLimit: *flags.pollFetchLimit,
		VaultScanDepth: *flags.vaultScanDepth,
		SeedUsers:      users,
		SeedChannels:   splitList(*flags.targetChannels),
	}, nil
}

// parseIDList parses a comma-separated list of numeric ids.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
