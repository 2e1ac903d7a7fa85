package flushlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingStore stores records in a JSONL file with automatic rotation.
type RotatingStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingStore creates a store with rotation options in megabytes and days.
func NewRotatingStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	}
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingStore) Append(ctx context.Context, rec Record) error {
	_ = ctx
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.logger.Write(append(b, '\n'))
	return err
}

// Query reads all log files including rotated ones.
func (s *RotatingStore) Query(ctx context.Context, q Query) ([]Record, error) {
	_ = ctx
	// rotated backups are named <name>-<timestamp><ext>; the live file is read last
	files, err := filepath.Glob(s.backupPattern())
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if _, err := os.Stat(s.path); err == nil {
		files = append(files, s.path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Record
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			continue
		}
		recs, err := scan(f, q)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		res = append(res, recs...)
	}
	return res, nil
}

func (s *RotatingStore) backupPattern() string {
	ext := filepath.Ext(s.path)
	return s.path[:len(s.path)-len(ext)] + "-*" + ext
}

// Close closes the underlying writer.
func (s *RotatingStore) Close() error {
	return s.logger.Close()
}
