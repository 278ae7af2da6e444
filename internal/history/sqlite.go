package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS turns (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	turn_id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	emotion TEXT NOT NULL DEFAULT '',
	emotion_intensity REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, seq);
CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
`

// sqliteTimeLayout has a fixed width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists history rows in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("history sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, userID string, turns []chat.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO turns (user_id, turn_id, role, text, emotion, emotion_intensity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, turn := range turns {
		if _, err := stmt.ExecContext(ctx, userID, turn.ID, string(turn.Role), turn.Text,
			turn.Emotion, turn.EmotionIntensity, turn.Timestamp.UTC().Format(sqliteTimeLayout)); err != nil {
			return fmt.Errorf("insert turn %s: %w", turn.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) []chat.Turn {
	rows, err := s.db.QueryContext(ctx, `SELECT turn_id, role, text, emotion, emotion_intensity, created_at
		FROM turns WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		s.logger.Warn("history query failed, treating as empty", zap.String("userId", userID), zap.Error(err))
		return []chat.Turn{}
	}
	defer rows.Close()

	turns := []chat.Turn{}
	for rows.Next() {
		var (
			turn      chat.Turn
			role      string
			createdAt string
		)
		if err := rows.Scan(&turn.ID, &role, &turn.Text, &turn.Emotion, &turn.EmotionIntensity, &createdAt); err != nil {
			s.logger.Warn("skipping unreadable history row", zap.Error(err))
			continue
		}
		turn.Role = chat.Role(role)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			turn.Timestamp = ts
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("history scan aborted", zap.String("userId", userID), zap.Error(err))
	}
	return turns
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	// created_at is fixed-width UTC, so text comparison orders by time.
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`,
		cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
