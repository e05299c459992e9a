package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/symposium/internal/board"
	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/socketrpc"
)

const (
	defaultBindHost            = "0.0.0.0"
	defaultAPIPort             = 3000
	defaultQueryTimeout        = 30 * time.Second
	defaultMaxConcurrentRuns   = 4
	defaultInsertBatchSize     = 500
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultRunRetention        = 30 // days, 0 = disabled
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 24
	defaultBoardSpeed          = 1.0
	defaultBoardAttemptChance  = 1.0
)

// appConfig is internal runtime configuration.
type appConfig struct {
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	SocketPath          string        `mapstructure:"socket-path"`
	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentRuns   int           `mapstructure:"max-concurrent-runs"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	JournalEnabled      bool          `mapstructure:"journal-enabled"`
	JournalPath         string        `mapstructure:"journal-path"`
	RunRetention        int           `mapstructure:"run-retention"`
	BackupEnabled       bool          `mapstructure:"backup-enabled"`
	BackupInterval      time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir      string        `mapstructure:"backup-local-dir"`
	BackupKeepLast      int           `mapstructure:"backup-keep-last"`
	BackupMirrorDir     string        `mapstructure:"backup-mirror-dir"`
	BoardPhilosophers   int           `mapstructure:"board-philosophers"`
	BoardSpeed          float64       `mapstructure:"board-speed"`
	BoardAttemptChance  float64       `mapstructure:"board-attempt-chance"`
	GamePhilosophers    int           `mapstructure:"game-philosophers"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	cfg, _, err := readConfig(configPath)
	return cfg, err
}

// readConfig also returns the viper instance so the caller can watch the file.
func readConfig(configPath string) (appConfig, *viper.Viper, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil, fmt.Errorf("finding home directory: %w", err)
	}

	shareDir := filepath.Join(home, ".local", "share", "symposium")
	stateDir := filepath.Join(home, ".local", "state", "symposium")

	v := viper.New()
	v.SetEnvPrefix("SYMPOSIUM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("db-path", filepath.Join(shareDir, "symposium.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-runs", defaultMaxConcurrentRuns)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("journal-enabled", false)
	v.SetDefault("journal-path", filepath.Join(stateDir, "events.journal"))
	v.SetDefault("run-retention", defaultRunRetention)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(shareDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-mirror-dir", "")
	v.SetDefault("board-philosophers", model.DefaultBoardSize)
	v.SetDefault("board-speed", defaultBoardSpeed)
	v.SetDefault("board-attempt-chance", defaultBoardAttemptChance)
	v.SetDefault("game-philosophers", model.DefaultGameSize)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "symposium", "config.yml"))
	}

	configFound := true
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, nil, err
		}
		configFound = false
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, nil, err
	}
	if configFound {
		cfg.ConfigPath = v.ConfigFileUsed()
	}
	if err := cfg.validate(); err != nil {
		return cfg, nil, err
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.JournalPath = expandHome(home, cfg.JournalPath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)
	cfg.BackupMirrorDir = expandHome(home, cfg.BackupMirrorDir)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}
	return cfg, v, nil
}

func (c appConfig) validate() error {
	switch {
	case c.APIPort <= 0 || c.APIPort > 65535:
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	case c.MaxConcurrentRuns < 1:
		return fmt.Errorf("invalid max-concurrent-runs: %d", c.MaxConcurrentRuns)
	case c.RunRetention < 0:
		return fmt.Errorf("invalid run-retention: %d", c.RunRetention)
	case c.BoardPhilosophers < 1 || c.BoardPhilosophers > model.MaxPhilosophers:
		return fmt.Errorf("invalid board-philosophers: %d", c.BoardPhilosophers)
	case c.GamePhilosophers < 1 || c.GamePhilosophers > model.MaxPhilosophers:
		return fmt.Errorf("invalid game-philosophers: %d", c.GamePhilosophers)
	case c.BoardSpeed <= 0 || c.BoardSpeed > board.MaxSpeed:
		return fmt.Errorf("invalid board-speed: %g", c.BoardSpeed)
	case c.BoardAttemptChance < 0 || c.BoardAttemptChance > 1:
		return fmt.Errorf("invalid board-attempt-chance: %g", c.BoardAttemptChance)
	}
	if c.JournalEnabled && strings.TrimSpace(c.JournalPath) == "" {
		return errors.New("journal-path is required when journal-enabled is set")
	}
	if c.BackupEnabled {
		if c.BackupInterval <= 0 {
			return fmt.Errorf("invalid backup-interval: %s", c.BackupInterval)
		}
		if c.BackupKeepLast < 1 {
			return fmt.Errorf("invalid backup-keep-last: %d", c.BackupKeepLast)
		}
	}
	return nil
}

// expandHome expands a leading ~/ in path.
func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
