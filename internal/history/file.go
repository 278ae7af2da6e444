package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

// FileStore keeps every user's history in a single JSON document.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore ensures the parent directory of path exists.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("history file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure history dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}, nil
}

func (s *FileStore) Append(_ context.Context, userID string, turns []chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		// Corrupt data reads as empty and is overwritten on the next write.
		s.logger.Warn("discarding unreadable history file", zap.String("path", s.path), zap.Error(err))
		doc = make(map[string][]chat.Turn)
	}
	doc[userID] = append(doc[userID], turns...)
	return s.save(doc)
}

func (s *FileStore) Get(_ context.Context, userID string) []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		s.logger.Warn("history file unreadable, treating as empty", zap.String("path", s.path), zap.Error(err))
		return []chat.Turn{}
	}
	turns := doc[userID]
	if turns == nil {
		return []chat.Turn{}
	}
	return turns
}

func (s *FileStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	removed := 0
	for userID, turns := range doc {
		kept, n := pruneTurns(turns, cutoff)
		removed += n
		if len(kept) == 0 {
			delete(doc, userID)
			continue
		}
		doc[userID] = kept
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(doc)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() (map[string][]chat.Turn, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string][]chat.Turn), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	doc := make(map[string][]chat.Turn)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return doc, nil
}

func (s *FileStore) save(doc map[string][]chat.Turn) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
