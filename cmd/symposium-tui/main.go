package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/symposium/internal/board"
	"github.com/tinytelemetry/symposium/internal/engine"
	"github.com/tinytelemetry/symposium/internal/game"
	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/socketrpc"
	"github.com/tinytelemetry/symposium/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var socketPath string
	var local bool
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/symposium/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to the symposium service")
	flag.BoolVar(&local, "local", false, "run the board and game in-process instead of connecting to the service")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Symposium TUI - Table Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}

	if err := runTUI(cfg, local); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type controllers struct {
	board model.BoardController
	game  model.GameController
}

func runTUI(cfg cliConfig, local bool) error {
	theme, err := tui.LoadSkin(tui.DefaultSkinDir(), cfg.Skin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load skin '%s': %v (using default)\n", cfg.Skin, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var ctrl controllers
	if local {
		ctrl, err = startLocal(gctx, g, cfg)
		if err != nil {
			return err
		}
	} else {
		client, err := socketrpc.Dial(cfg.SocketPath)
		if err != nil {
			return fmt.Errorf("cannot connect to symposium service at %s: %w\nIs the service running? Start it with: symposium, or use -local", cfg.SocketPath, err)
		}
		defer client.Close()
		ctrl = controllers{board: client, game: client}
	}

	keys := tui.DefaultKeyMap()
	styles := tui.NewStyles(theme)
	app := tui.NewApp(keys,
		tui.NewBoardPage(ctrl.board, keys, styles, cfg.UpdateInterval),
		tui.NewGamePage(ctrl.game, keys, styles, cfg.UpdateInterval),
	)

	p := tea.NewProgram(app, tea.WithAltScreen())
	_, runErr := p.Run()

	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if runErr != nil {
		if strings.Contains(runErr.Error(), "TTY") || strings.Contains(runErr.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", runErr)
	}
	return nil
}

// startLocal builds in-process engines and runs their clocks on g.
func startLocal(ctx context.Context, g *errgroup.Group, cfg cliConfig) (controllers, error) {
	brd, err := board.New(board.Config{Philosophers: cfg.BoardPhilosophers, Speed: cfg.BoardSpeed})
	if err != nil {
		return controllers{}, fmt.Errorf("create board: %w", err)
	}
	gm, err := game.New(game.Config{Philosophers: cfg.GamePhilosophers})
	if err != nil {
		return controllers{}, fmt.Errorf("create game: %w", err)
	}
	b, gameEngine := engine.NewBoard(brd), engine.NewGame(gm)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return gameEngine.Run(ctx) })
	return controllers{board: b, game: gameEngine}, nil
}
