package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"rosterbot/pkg/logx"
)

var ErrClosed = errors.New("storage closed")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API used by the roster core.
//
// LoadDoc returns (nil, false, nil) when no document exists for the key;
// lazy creation is the caller's concern. SaveDoc must be durable before it
// returns so a subsequent LoadDoc from any caller observes the write.
type Store interface {
	LoadDoc(ctx context.Context, key string) (doc []byte, ok bool, err error)
	SaveDoc(ctx context.Context, key string, doc []byte) error
	// ForEachDoc visits every stored document; used once at startup for
	// reconciliation. Iteration order is unspecified.
	ForEachDoc(ctx context.Context, fn func(key string, doc []byte) error) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
