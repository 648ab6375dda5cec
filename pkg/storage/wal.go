package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WAL is an append-only log of completed operations, one JSON line each.
type WAL interface {
	Append(rec TxRecord) error
}

type NopWAL struct{}

func NewNopWAL() *NopWAL                  { return &NopWAL{} }
func (w *NopWAL) Append(_ TxRecord) error { return nil }

type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

func (w *FileWAL) Append(rec TxRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.f, string(line))
	return err
}

func (w *FileWAL) Close() error { return w.f.Close() }

var _ WAL = (*NopWAL)(nil)
var _ WAL = (*FileWAL)(nil)
