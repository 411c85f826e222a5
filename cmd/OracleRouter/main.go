// Command OracleRouter serves the safety-aware flow and agent routing engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/OracleRouter/internal/api"
	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/engine"
	"github.com/BTreeMap/OracleRouter/internal/lockfile"
	"github.com/BTreeMap/OracleRouter/internal/memory"
	"github.com/BTreeMap/OracleRouter/internal/moderation"
	"github.com/BTreeMap/OracleRouter/internal/registry"
	"github.com/BTreeMap/OracleRouter/internal/scheduler"
	"github.com/BTreeMap/OracleRouter/internal/store"
	"github.com/BTreeMap/OracleRouter/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for OracleRouter state data
	DefaultStateDir = "/var/lib/oraclerouter"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "oraclerouter.db"
	// MemoryDSN selects the in-memory store.
	MemoryDSN = "memory"
)

func main() {
	env := loadEnvironmentConfig()

	flags, err := parseFlags(flag.CommandLine, os.Args[1:], env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(flags.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("OracleRouter failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("OracleRouter exited successfully")
}

// EnvConfig holds environment configuration
type EnvConfig struct {
	StateDir          string
	DatabaseURL       string
	OpenAIKey         string
	APIAddr           string
	ConfigPath        string
	AgentsPath        string
	Timezone          string
	LogLevel          string
	ModerationEnabled bool
}

// Flags holds the effective settings after command line overrides.
type Flags struct {
	StateDir          string
	DBDSN             string
	OpenAIKey         string
	APIAddr           string
	ConfigPath        string
	AgentsPath        string
	Timezone          string
	LogLevel          string
	ModerationEnabled bool
	WriteConfig       string
}

// initializeLogger sets up the structured text logger at the requested level.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() EnvConfig {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := EnvConfig{
		StateDir:    os.Getenv("ORACLE_STATE_DIR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		ConfigPath:  os.Getenv("ORACLE_CONFIG"),
		AgentsPath:  os.Getenv("ORACLE_AGENTS"),
		Timezone:    os.Getenv("ORACLE_TIMEZONE"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = api.DefaultAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.ModerationEnabled = util.ParseBoolEnv("ORACLE_MODERATION_ENABLED", cfg.OpenAIKey != "")
	return cfg
}

// parseFlags parses command line arguments with environment defaults.
func parseFlags(fs *flag.FlagSet, args []string, env EnvConfig) (Flags, error) {
	var f Flags
	fs.StringVar(&f.StateDir, "state-dir", env.StateDir, "state directory for OracleRouter data (overrides $ORACLE_STATE_DIR)")
	fs.StringVar(&f.DBDSN, "db-dsn", env.DatabaseURL, "Postgres URL, SQLite path or \"memory\" (overrides $DATABASE_URL; default SQLite in the state directory)")
	fs.StringVar(&f.OpenAIKey, "openai-api-key", env.OpenAIKey, "OpenAI API key for risk moderation (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.APIAddr, "api-addr", env.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.ConfigPath, "config", env.ConfigPath, "threshold YAML file (overrides $ORACLE_CONFIG)")
	fs.StringVar(&f.AgentsPath, "agents", env.AgentsPath, "agent catalog YAML; empty uses the built-in catalog (overrides $ORACLE_AGENTS)")
	fs.StringVar(&f.Timezone, "timezone", env.Timezone, "IANA zone used for time-of-day learning (overrides $ORACLE_TIMEZONE)")
	fs.StringVar(&f.LogLevel, "log-level", env.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.BoolVar(&f.ModerationEnabled, "moderation", env.ModerationEnabled, "assess risk with the OpenAI moderation API (overrides $ORACLE_MODERATION_ENABLED)")
	fs.StringVar(&f.WriteConfig, "write-config", "", "write the effective thresholds to this YAML path and exit")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if f.DBDSN == "" {
		f.DBDSN = filepath.Join(f.StateDir, DefaultDBFileName)
	}
	if strings.EqualFold(f.DBDSN, MemoryDSN) {
		f.DBDSN = ""
	}
	return f, nil
}

// loadThresholds reads and validates the threshold configuration.
func loadThresholds(f Flags) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRegistry(f Flags, cfg *config.Config) (*registry.Registry, error) {
	opts := []registry.Option{
		registry.WithMinCapability(cfg.Registry.MinCapability),
		registry.WithDefaultAgent(cfg.Registry.DefaultAgentID),
	}
	if f.AgentsPath != "" {
		return registry.LoadFile(f.AgentsPath, opts...)
	}
	return registry.Load(opts...)
}

func buildMemoryOptions(f Flags, persister memory.Persister) ([]memory.Option, error) {
	opts := []memory.Option{memory.WithPersister(persister)}
	if f.Timezone != "" {
		loc, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", f.Timezone, err)
		}
		opts = append(opts, memory.WithLocation(loc))
	}
	return opts, nil
}

func buildEngineOptions(f Flags, s store.Store, writer *store.Writer) ([]engine.Option, error) {
	opts := []engine.Option{
		engine.WithDecisionSink(writer),
		engine.WithDecisionStore(s),
	}
	if !f.ModerationEnabled {
		slog.Info("Moderation disabled; routing relies on caller-supplied risk")
		return opts, nil
	}
	client, err := moderation.NewClient(moderation.WithAPIKey(f.OpenAIKey))
	if err != nil {
		return nil, fmt.Errorf("moderation enabled but unavailable: %w", err)
	}
	return append(opts, engine.WithRiskProvider(client)), nil
}

// run wires the router and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, f Flags) error {
	cfg, err := loadThresholds(f)
	if err != nil {
		return err
	}
	if f.WriteConfig != "" {
		if err := cfg.Save(f.WriteConfig); err != nil {
			return err
		}
		slog.Info("Wrote effective configuration", "path", f.WriteConfig)
		return nil
	}

	reg, err := loadRegistry(f, cfg)
	if err != nil {
		return err
	}
	if uncovered := reg.UncoveredFlows(); len(uncovered) > 0 {
		slog.Warn("Some flows have no capable agent; the default agent will serve them", "flows", uncovered)
	}

	lock, err := lockfile.Acquire(f.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	s, err := store.Open(f.DBDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	writer := store.NewWriter(s, cfg.Writer)
	memOpts, err := buildMemoryOptions(f, writer)
	if err != nil {
		return err
	}
	mem := memory.New(s, cfg.Memory, memOpts...)

	engOpts, err := buildEngineOptions(f, s, writer)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, reg, mem, engOpts...)
	if err != nil {
		return err
	}
	srv := api.NewServer(eng)

	sched, err := buildScheduler(cfg, eng, writer)
	if err != nil {
		return err
	}

	slog.Info("Bootstrapping OracleRouter",
		"state_dir", f.StateDir,
		"store", describeDSN(f.DBDSN),
		"api_addr", f.APIAddr,
		"agents", len(reg.All()),
		"moderation", f.ModerationEnabled)

	// The writer outlives the HTTP server so late requests still reach storage.
	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWriter()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stopWriter()
		return srv.Run(gctx, f.APIAddr)
	})
	g.Go(func() error {
		return writer.Run(writerCtx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	err = g.Wait()
	if dropped := writer.Dropped(); dropped > 0 {
		slog.Warn("Write-behind queue dropped writes", "dropped", dropped)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildScheduler registers the periodic maintenance jobs.
func buildScheduler(cfg *config.Config, eng *engine.Engine, writer *store.Writer) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	if cfg.Engine.MaintenanceSchedule == "" {
		return sched, nil
	}
	err := sched.AddJob("prune-decisions", cfg.Engine.MaintenanceSchedule, func(ctx context.Context) error {
		pruned := eng.PruneExpired()
		slog.Debug("Maintenance: pruned expired decisions", "pruned", pruned,
			"pending", eng.PendingDecisions(), "writerPending", writer.Pending(), "writerDropped", writer.Dropped())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func describeDSN(dsn string) string {
	if dsn == "" {
		return MemoryDSN
	}
	return store.DetectDSNType(dsn)
}
