package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/socketrpc"
)

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	UpdateInterval    time.Duration `mapstructure:"update-interval"`
	Skin              string        `mapstructure:"skin"`
	SocketPath        string        `mapstructure:"socket-path"`
	BoardPhilosophers int           `mapstructure:"board-philosophers"`
	BoardSpeed        float64       `mapstructure:"board-speed"`
	GamePhilosophers  int           `mapstructure:"game-philosophers"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SYMPOSIUM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("update-interval", model.DefaultUpdateInterval)
	v.SetDefault("skin", model.DefaultSkin)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("board-philosophers", model.DefaultBoardSize)
	v.SetDefault("board-speed", 1.0)
	v.SetDefault("game-philosophers", model.DefaultGameSize)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "symposium", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.UpdateInterval <= 0 {
		return cfg, fmt.Errorf("invalid update-interval: %s", cfg.UpdateInterval)
	}
	return cfg, nil
}
