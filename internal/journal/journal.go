// Package journal is an append-only JSON-lines log of simulator events. Every
// append is fsynced before it returns; a sidecar ".commit" file records the
// highest sequence already persisted downstream, so a restart replays only
// what was lost.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tinytelemetry/symposium/internal/model"
)

const (
	fileMode = 0644
	dirMode  = 0755
)

var (
	ErrEmptyPath = errors.New("journal: path is empty")
	ErrClosed    = errors.New("journal: closed")
	ErrNilEvent  = errors.New("journal: nil event")
)

type entry struct {
	Seq   uint64      `json:"seq"`
	Event model.Event `json:"event"`
}

// Journal is safe for concurrent use.
type Journal struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	nextSeq    uint64
	committed  uint64
}

// Open creates or opens the journal at path. Committed entries are compacted
// away, and a partially written trailing line is dropped.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}
	maxSeq, err := compact(path, committed)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, fileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    max(maxSeq, committed) + 1,
		committed:  committed,
	}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes one event and returns its journal sequence number.
func (j *Journal) Append(ev *model.Event) (uint64, error) {
	if ev == nil {
		return 0, ErrNilEvent
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, ErrClosed
	}

	seq := j.nextSeq
	line, err := json.Marshal(entry{Seq: seq, Event: *ev})
	if err != nil {
		return 0, fmt.Errorf("journal: marshal: %w", err)
	}
	line = append(line, '\n')
	if _, err := j.file.Write(line); err != nil {
		return 0, fmt.Errorf("journal: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync: %w", err)
	}
	j.nextSeq++
	return seq, nil
}

// Commit marks every entry up to and including seq as persisted.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if seq <= j.committed {
		return nil
	}
	if err := writeCommitted(j.commitPath, seq); err != nil {
		return err
	}
	j.committed = seq
	return nil
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Replay calls fn for each uncommitted entry in file order.
func (j *Journal) Replay(fn func(seq uint64, ev *model.Event) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}
	j.mu.Lock()
	path, committed := j.path, j.committed
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	return scan(f, func(e entry, _ []byte) error {
		if e.Seq <= committed {
			return nil
		}
		ev := e.Event
		return fn(e.Seq, &ev)
	})
}

// Close closes the journal file. Further appends fail with ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// scan reads complete, well-formed lines from r and stops quietly at the first
// partial or malformed one.
func scan(r io.Reader, fn func(e entry, line []byte) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return nil
		}
		var e entry
		if json.Unmarshal(line, &e) != nil {
			return nil
		}
		if ferr := fn(e, line); ferr != nil {
			return ferr
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal: read commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse commit seq: %w", err)
	}
	return seq, nil
}

// writeAtomic writes data to a temp file, fsyncs it and renames it over path.
func writeAtomic(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeCommitted(path string, seq uint64) error {
	err := writeAtomic(path, func(f *os.File) error {
		_, err := f.WriteString(strconv.FormatUint(seq, 10) + "\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("journal: write commit file: %w", err)
	}
	return nil
}

// compact rewrites the journal keeping only uncommitted entries and returns
// the highest sequence seen.
func compact(path string, committed uint64) (uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, fileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open for compact: %w", err)
	}
	defer src.Close()

	var maxSeq uint64
	err = writeAtomic(path, func(dst *os.File) error {
		return scan(src, func(e entry, line []byte) error {
			maxSeq = max(maxSeq, e.Seq)
			if e.Seq <= committed {
				return nil
			}
			_, werr := dst.Write(line)
			return werr
		})
	})
	if err != nil {
		return 0, fmt.Errorf("journal: compact: %w", err)
	}
	return maxSeq, nil
}
