// Command reviewbot runs the Messenger review-center chatbot: the webhook
// server, the event dispatcher and the re-engagement sweep.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/premierreview/reviewbot/internal/api"
	"github.com/premierreview/reviewbot/internal/genai"
	"github.com/premierreview/reviewbot/internal/messaging"
	"github.com/premierreview/reviewbot/internal/persuasion"
	"github.com/premierreview/reviewbot/internal/pipeline"
	"github.com/premierreview/reviewbot/internal/scheduler"
	"github.com/premierreview/reviewbot/internal/store"
	"github.com/premierreview/reviewbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for reviewbot state data
	DefaultStateDir = "/var/lib/reviewbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "reviewbot.db"
	// DefaultGradingModel grades exam answers unless OPENAI_GRADING_MODEL is set.
	DefaultGradingModel = "gpt-4o"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(os.Stdout, config.LogLevel, config.LogFormat)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}
	initializeLogger(os.Stdout, flags.logLevel, config.LogFormat)

	if flags.importQuestions != "" {
		if err := runImport(flags); err != nil {
			slog.Error("Question import failed", "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("Bootstrapping reviewbot", "state_dir", flags.stateDir, "dsn_type", store.DetectDSNType(flags.dbDSN), "api_addr", flags.apiAddr)
	if err := run(flags); err != nil {
		slog.Error("reviewbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("reviewbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	OpenAIKey        string
	OpenAIBaseURL    string
	OpenAIModel      string
	GradingModel     string
	OpenAITimeout    time.Duration
	GenAIDebug       bool
	PageAccessToken  string
	AppID            string
	AppSecret        string
	VerifyToken      string
	AdminToken       string
	APIAddr          string
	WebsiteURL       string
	ReengageSchedule string
	Workers          int
	QueueSize        int
	LoadingMessages  bool
	AdminPause       time.Duration
	LogLevel         string
	LogFormat        string
}

// Flags holds the effective settings after command line overrides.
type Flags struct {
	Config
	stateDir         string
	dbDSN            string
	apiAddr          string
	reengageSchedule string
	workers          int
	logLevel         string
	importQuestions  string
}

// initializeLogger installs the default slog logger.
func initializeLogger(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:         util.GetEnv("REVIEWBOT_STATE_DIR", DefaultStateDir),
		DatabaseURL:      util.GetEnv("DATABASE_URL", ""),
		OpenAIKey:        util.GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    util.GetEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:      util.GetEnv("OPENAI_MODEL", genai.DefaultModel),
		GradingModel:     util.GetEnv("OPENAI_GRADING_MODEL", DefaultGradingModel),
		OpenAITimeout:    util.ParseDurationEnv("OPENAI_TIMEOUT", genai.DefaultTimeout),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
		PageAccessToken:  util.GetEnv("FACEBOOK_PAGE_ACCESS_TOKEN", ""),
		AppID:            util.GetEnv("FACEBOOK_APP_ID", ""),
		AppSecret:        util.GetEnv("APP_SECRET", ""),
		VerifyToken:      util.GetEnv("VERIFY_TOKEN", ""),
		AdminToken:       util.GetEnv("ADMIN_TOKEN", ""),
		APIAddr:          util.GetEnv("API_ADDR", api.DefaultAddr),
		WebsiteURL:       util.GetEnv("WEBSITE_URL", persuasion.DefaultWebsiteURL),
		ReengageSchedule: util.GetEnv("REENGAGE_SCHEDULE", scheduler.DefaultSweepSchedule),
		Workers:          util.ParseIntEnv("WORKERS", pipeline.DefaultWorkers),
		QueueSize:        util.ParseIntEnv("QUEUE_SIZE", pipeline.DefaultQueueSize),
		LoadingMessages:  util.ParseBoolEnv("LOADING_MESSAGES", false),
		AdminPause:       util.ParseDurationEnv("ADMIN_PAUSE", pipeline.DefaultAdminPause),
		LogLevel:         util.GetEnv("LOG_LEVEL", "info"),
		LogFormat:        util.GetEnv("LOG_FORMAT", "text"),
	}

	slog.Debug("environment variables loaded",
		"REVIEWBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"OPENAI_GRADING_MODEL", config.GradingModel,
		"FACEBOOK_PAGE_ACCESS_TOKEN_SET", config.PageAccessToken != "",
		"FACEBOOK_APP_ID", config.AppID,
		"APP_SECRET_SET", config.AppSecret != "",
		"ADMIN_TOKEN_SET", config.AdminToken != "",
		"API_ADDR", config.APIAddr,
		"REENGAGE_SCHEDULE", config.ReengageSchedule,
		"WORKERS", config.Workers)

	return config
}

// parseCommandLineFlags applies command line overrides on top of config.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	f := Flags{Config: config}
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for reviewbot data (overrides $REVIEWBOT_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseURL, "PostgreSQL DSN or SQLite path (overrides $DATABASE_URL; default: SQLite under the state directory)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.reengageSchedule, "reengage-schedule", config.ReengageSchedule, "cron schedule of the re-engagement sweep (overrides $REENGAGE_SCHEDULE)")
	fs.IntVar(&f.workers, "workers", config.Workers, "number of event workers (overrides $WORKERS)")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.StringVar(&f.importQuestions, "import-questions", "", "import questions from a JSON export and exit")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if fs.NArg() > 0 {
		return Flags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if f.workers <= 0 {
		return Flags{}, fmt.Errorf("workers must be positive, got %d", f.workers)
	}
	if f.dbDSN == "" {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
	}

	slog.Debug("flags parsed",
		"stateDir", f.stateDir,
		"dbDSN_set", f.dbDSN != "",
		"apiAddr", f.apiAddr,
		"reengageSchedule", f.reengageSchedule,
		"workers", f.workers,
		"importQuestions", f.importQuestions)
	return f, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(flags.dbDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(flags.dbDSN)}
}

// openStore opens the backend selected by the DSN.
func openStore(flags Flags) (store.Store, error) {
	opts := buildStoreOptions(flags)
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		pg, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := store.NewSQLiteStore(opts...)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// buildGenAIOptions constructs GenAI configuration options for model.
func buildGenAIOptions(flags Flags, model string) []genai.Option {
	opts := []genai.Option{
		genai.WithAPIKey(flags.OpenAIKey),
		genai.WithModel(model),
		genai.WithTimeout(flags.OpenAITimeout),
	}
	if flags.OpenAIBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(flags.OpenAIBaseURL))
	}
	if flags.GenAIDebug {
		opts = append(opts, genai.WithDebugMode(true, flags.stateDir))
	}
	return opts
}

// buildGraphOptions constructs Messenger Send API options
func buildGraphOptions(flags Flags) []messaging.GraphOption {
	return []messaging.GraphOption{messaging.WithAccessToken(flags.PageAccessToken)}
}

// buildPipelineOptions constructs pipeline options
func buildPipelineOptions(flags Flags) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithAppID(flags.AppID),
		pipeline.WithLoadingMessages(flags.LoadingMessages),
		pipeline.WithAdminPause(flags.AdminPause),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	return []api.Option{
		api.WithAddr(flags.apiAddr),
		api.WithVerifyToken(flags.VerifyToken),
		api.WithAppSecret(flags.AppSecret),
		api.WithAdminToken(flags.AdminToken),
	}
}
