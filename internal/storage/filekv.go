package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type fileRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FileKV keeps every pair in a single JSON document. Each write rewrites the
// whole file through a temp file and rename, so readers never see a partial
// document.
type FileKV struct {
	path   string
	mu     sync.Mutex
	closed bool
}

func NewFileKV(path string) (*FileKV, error) {
	if path == "" {
		return nil, errors.New("file store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "ensure store dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "touch store file")
	}
	_ = f.Close()
	return &FileKV{path: path}, nil
}

func (s *FileKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	records, err := s.loadUnlocked()
	if err != nil {
		return nil, false, err
	}
	for _, r := range records {
		if r.Key == key {
			return []byte(r.Value), true, nil
		}
	}
	return nil, false, nil
}

func (s *FileKV) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	records, err := s.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i := range records {
		if records[i].Key == key {
			records[i].Value = string(value)
			updated = true
			break
		}
	}
	if !updated {
		records = append(records, fileRecord{Key: key, Value: string(value)})
	}
	return s.saveUnlocked(records)
}

func (s *FileKV) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	records, err := s.loadUnlocked()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range records {
		if strings.HasPrefix(r.Key, prefix) {
			out = append(out, r.Key)
		}
	}
	return out, nil
}

func (s *FileKV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileKV) loadUnlocked() ([]fileRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read store file")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var records []fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, "decode store file %s", s.path)
	}
	return records, nil
}

func (s *FileKV) saveUnlocked(records []fileRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode store file")
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "replace store file")
	}
	return nil
}
