package backup

import (
	"context"
	"time"
)

// Config controls periodic DuckDB backups.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LocalDir string
	KeepLast int
	// MirrorDir, when set, receives a copy of every snapshot.
	MirrorDir string
}

// Snapshotter is the minimal DB snapshot contract used by Manager.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}

// Publisher ships one finished snapshot somewhere else.
type Publisher interface {
	Publish(ctx context.Context, localPath string) error
}
