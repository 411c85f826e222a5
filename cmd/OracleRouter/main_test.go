package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/OracleRouter/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ORACLE_STATE_DIR", "DATABASE_URL", "OPENAI_API_KEY", "API_ADDR", "ORACLE_CONFIG",
		"ORACLE_AGENTS", "ORACLE_TIMEZONE", "LOG_LEVEL", "ORACLE_MODERATION_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("OracleRouter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearEnv(t)

	env := loadEnvironmentConfig()
	assert.Equal(t, DefaultStateDir, env.StateDir)
	assert.Equal(t, ":8080", env.APIAddr)
	assert.Equal(t, "info", env.LogLevel)
	assert.False(t, env.ModerationEnabled, "moderation needs a key by default")
}

func TestLoadEnvironmentConfigModeration(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.True(t, loadEnvironmentConfig().ModerationEnabled)

	t.Setenv("ORACLE_MODERATION_ENABLED", "false")
	assert.False(t, loadEnvironmentConfig().ModerationEnabled)
}

func TestParseFlagsDefaultsToSQLiteInStateDir(t *testing.T) {
	clearEnv(t)
	env := loadEnvironmentConfig()

	f, err := parseFlags(newFlagSet(), []string{"-state-dir", "/tmp/oracle"}, env)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/oracle", f.StateDir)
	assert.Equal(t, filepath.Join("/tmp/oracle", DefaultDBFileName), f.DBDSN)
}

func TestParseFlagsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	env := loadEnvironmentConfig()

	f, err := parseFlags(newFlagSet(), nil, env)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", f.DBDSN)

	f, err = parseFlags(newFlagSet(), []string{"-db-dsn", "memory", "-api-addr", ":9090", "-moderation=false"}, env)
	require.NoError(t, err)
	assert.Empty(t, f.DBDSN)
	assert.Equal(t, ":9090", f.APIAddr)
	assert.False(t, f.ModerationEnabled)
	assert.Equal(t, "memory", describeDSN(f.DBDSN))
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	clearEnv(t)
	_, err := parseFlags(newFlagSet(), []string{"-qr-output", "x"}, loadEnvironmentConfig())
	assert.Error(t, err)
}

func TestBuildMemoryOptionsTimezone(t *testing.T) {
	opts, err := buildMemoryOptions(Flags{Timezone: "Europe/Berlin"}, nil)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	_, err = buildMemoryOptions(Flags{Timezone: "Mars/Olympus"}, nil)
	assert.Error(t, err)
}

func TestBuildEngineOptionsModerationNeedsKey(t *testing.T) {
	clearEnv(t)
	_, err := buildEngineOptions(Flags{ModerationEnabled: true}, nil, nil)
	assert.Error(t, err)

	opts, err := buildEngineOptions(Flags{}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestRunWriteConfig(t *testing.T) {
	clearEnv(t)
	out := filepath.Join(t.TempDir(), "oracle.yml")

	require.NoError(t, run(context.Background(), Flags{WriteConfig: out}))

	_, err := os.Stat(out)
	require.NoError(t, err)
	cfg, err := config.Load(out)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Memory.LearningRate, cfg.Memory.LearningRate)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  learning_rate: 7\n"), 0o644))

	err := run(context.Background(), Flags{ConfigPath: path, StateDir: t.TempDir()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunStopsOnCancel(t *testing.T) {
	clearEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, Flags{StateDir: t.TempDir(), APIAddr: "127.0.0.1:0"})
	assert.NoError(t, err)
}

func TestBuildSchedulerUsesMaintenanceSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	sched, err := buildScheduler(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Jobs())
	sched.Stop()

	cfg.Engine.MaintenanceSchedule = ""
	sched, err = buildScheduler(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.Jobs())
	sched.Stop()

	cfg.Engine.MaintenanceSchedule = "every tuesday"
	_, err = buildScheduler(cfg, nil, nil)
	assert.Error(t, err)
}
