package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rosterbot/pkg/logx"
)

// fileStore keeps every guild document in one JSON file. Writes rewrite the
// whole file through a temp-file rename so a crash never leaves a torn
// document behind. Fine for the bot's scale (bounded by guild count).
type fileStore struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	docs := map[string]json.RawMessage{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(b) > 0 {
			if err := json.Unmarshal(b, &docs); err != nil {
				return nil, errors.New("corrupt document file " + path + ": " + err.Error())
			}
		}
	case os.IsNotExist(err):
		// first run
	default:
		return nil, err
	}

	return &fileStore{log: log, path: path, docs: docs}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	return nil
}

func (s *fileStore) LoadDoc(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		return nil, false, ErrClosed
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, true, nil
}

func (s *fileStore) SaveDoc(ctx context.Context, key string, doc []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		return ErrClosed
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	s.docs[key] = cp
	return s.flushLocked()
}

func (s *fileStore) ForEachDoc(ctx context.Context, fn func(key string, doc []byte) error) error {
	s.mu.Lock()
	if s.docs == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	// Snapshot so fn may call back into the store.
	snap := make(map[string][]byte, len(s.docs))
	for k, v := range s.docs {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap[k] = cp
	}
	s.mu.Unlock()

	for k, v := range snap {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// flushLocked writes the docs map compact so stored documents survive a
// Close/reopen cycle byte for byte.
func (s *fileStore) flushLocked() error {
	b, err := json.Marshal(s.docs)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
