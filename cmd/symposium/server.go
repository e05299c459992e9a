package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/symposium/internal/backup"
	"github.com/tinytelemetry/symposium/internal/board"
	"github.com/tinytelemetry/symposium/internal/duckdb"
	"github.com/tinytelemetry/symposium/internal/engine"
	"github.com/tinytelemetry/symposium/internal/game"
	"github.com/tinytelemetry/symposium/internal/httpserver"
	"github.com/tinytelemetry/symposium/internal/journal"
	"github.com/tinytelemetry/symposium/internal/socketrpc"
)

// runServer hosts the board and game engines, records simulator runs and
// serves them over HTTP and the unix socket.
func runServer(cfg appConfig, v *viper.Viper) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	bufCfg := duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	}
	if cfg.JournalEnabled {
		eventJournal, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open event journal: %w", err)
		}
		if _, err := duckdb.ReplayJournal(eventJournal, store, cfg.InsertBatchSize); err != nil {
			_ = eventJournal.Close()
			return fmt.Errorf("failed to replay event journal: %w", err)
		}
		bufCfg.Journal = eventJournal
	}

	insertBuffer := duckdb.NewInsertBuffer(store, bufCfg)
	defer insertBuffer.Stop()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RunRetention,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:   cfg.BackupEnabled,
		Interval:  cfg.BackupInterval,
		LocalDir:  cfg.BackupLocalDir,
		KeepLast:  cfg.BackupKeepLast,
		MirrorDir: cfg.BackupMirrorDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	attempt := cfg.BoardAttemptChance
	brd, err := board.New(board.Config{
		Philosophers:  cfg.BoardPhilosophers,
		Speed:         cfg.BoardSpeed,
		AttemptChance: &attempt,
	})
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}
	boardEngine := engine.NewBoard(brd)

	gm, err := game.New(game.Config{Philosophers: cfg.GamePhilosophers})
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	gameEngine := engine.NewGame(gm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	launcher := newLauncher(ctx, duckdb.NewRecorder(store, insertBuffer), cfg.MaxConcurrentRuns)
	// Runs must finish, and their events reach the buffer, before it stops.
	defer launcher.Wait()

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, httpserver.Deps{
			Board:    boardEngine,
			Game:     gameEngine,
			Runs:     store,
			Launcher: launcher,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	sockServer := socketrpc.NewServer(cfg.SocketPath, socketrpc.Services{
		Board: boardEngine,
		Game:  gameEngine,
		Runs:  store,
	})
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	watchConfig(v, cfg.ConfigPath, boardEngine)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return boardEngine.Run(gctx) })
	g.Go(func() error { return gameEngine.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	signal.Stop(sigCh)
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "symposium")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	f, err := os.OpenFile(filepath.Join(logDir, "symposium.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦ ╦╔╦╗╔═╗╔═╗╔═╗╦╦ ╦╔╦╗
    ╚═╗╚╦╝║║║╠═╝║ ║╚═╗║║ ║║║║
    ╚═╝ ╩ ╩ ╩╩  ╚═╝╚═╝╩╚═╝╩ ╩`)

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))), "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	if cfg.JournalEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Journal        %s", check, dim.Render(shortenPath(cfg.JournalPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Journal        %s", dot, dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"), "")
	lines = append(lines, fmt.Sprintf("    %s  Board          %s", check,
		dim.Render(fmt.Sprintf("%d philosophers at %gx", cfg.BoardPhilosophers, cfg.BoardSpeed))))
	lines = append(lines, fmt.Sprintf("    %s  Game           %s", check,
		dim.Render(fmt.Sprintf("%d philosophers", cfg.GamePhilosophers))))
	lines = append(lines, fmt.Sprintf("    %s  Runs           %s", check,
		dim.Render(fmt.Sprintf("up to %d concurrent", cfg.MaxConcurrentRuns))), "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath)+" (watched)")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
