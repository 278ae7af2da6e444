// Package history persists turns produced while the remote chat service was
// unreachable. It is a best-effort cache: reads never fail.
package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

// Store maps a user identifier to an ordered sequence of turns.
type Store interface {
	// Append adds turns after any already stored for userID. Turns are
	// never deduplicated.
	Append(ctx context.Context, userID string, turns []chat.Turn) error
	// Get returns the stored turns for userID, or an empty slice when
	// nothing is stored or the stored state cannot be read.
	Get(ctx context.Context, userID string) []chat.Turn
	Close() error
}

// Pruner is implemented by stores that can drop turns older than a cutoff.
type Pruner interface {
	// Prune removes every turn stamped before cutoff and reports how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Options selects and configures a Store implementation.
type Options struct {
	Driver    string
	Path      string
	RedisAddr string
	RedisPass string
	RedisDB   int
	KeyPrefix string
	// Retention bounds how long turns are kept. Redis applies it as a key
	// TTL; the other drivers rely on Prune. Zero keeps turns forever.
	Retention time.Duration
}

// Open builds the store named by opts.Driver.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("history")

	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(opts.Path, logger)
	case DriverSQLite:
		return NewSQLiteStore(ctx, opts.Path, logger)
	case DriverRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:      opts.RedisAddr,
			Password:  opts.RedisPass,
			DB:        opts.RedisDB,
			KeyPrefix: opts.KeyPrefix,
			TTL:       opts.Retention,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown history driver %q", opts.Driver)
	}
}
