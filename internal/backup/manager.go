package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "symposium-"
	fileSuffix = ".duckdb"
)

var (
	ErrNilSnapshotter = errors.New("backup: nil snapshotter")
	ErrInMemory       = errors.New("backup: db-path is empty (in-memory store)")
	ErrNoLocalDir     = errors.New("backup: local-dir is required when backup is enabled")
)

// Manager takes periodic local snapshots, publishes them when configured and
// keeps only the newest KeepLast copies.
type Manager struct {
	store     Snapshotter
	cfg       Config
	publisher Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager validates cfg, takes a startup snapshot and starts the loop.
// It returns nil when backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, ErrNilSnapshotter
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, ErrInMemory
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, ErrNoLocalDir
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	var pub Publisher
	if strings.TrimSpace(cfg.MirrorDir) != "" {
		dp, err := NewDirPublisher(cfg.MirrorDir)
		if err != nil {
			return nil, err
		}
		pub = dp
	}

	m := newManager(store, cfg, pub)
	if err := m.RunOnce(m.ctx); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func newManager(store Snapshotter, cfg Config, pub Publisher) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{store: store, cfg: cfg, publisher: pub, ctx: ctx, cancel: cancel}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// RunOnce creates one snapshot, publishes it and prunes old local copies.
func (m *Manager) RunOnce(ctx context.Context) error {
	name := filePrefix + time.Now().UTC().Format("20060102-150405.000") + fileSuffix
	localPath := filepath.Join(m.cfg.LocalDir, name)

	if err := m.store.SnapshotTo(localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", localPath)

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, localPath); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		log.Printf("backup: published snapshot %s", name)
	}

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune local backups: %w", err)
	}
	return nil
}

// Stop cancels any in-flight publish and waits for the loop. Safe on nil.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	// The timestamp in the name sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for _, old := range matches[keepLast:] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// DirPublisher copies snapshots into a second directory, such as a mounted
// network share.
type DirPublisher struct {
	dir string
}

// NewDirPublisher creates dir if needed.
func NewDirPublisher(dir string) (*DirPublisher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create mirror-dir: %w", err)
	}
	return &DirPublisher{dir: dir}, nil
}

// Publish copies localPath into the mirror directory under the same name.
func (p *DirPublisher) Publish(ctx context.Context, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst := filepath.Join(p.dir, filepath.Base(localPath))
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: src}); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
