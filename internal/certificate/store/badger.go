package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"certledger/internal/certificate/ports"
	"certledger/pkg/platform/sentinel"
)

const badgerGCInterval = 5 * time.Minute

// BadgerCache stores blobs in an embedded Badger database. An empty
// directory opens an in-memory instance.
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
	stopGC chan struct{}
	gcWg   sync.WaitGroup
}

// NewBadgerCache opens the database under dir.
func NewBadgerCache(dir string, ttl time.Duration, logger *slog.Logger) (*BadgerCache, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger: logger}).
		// INFO is noisy at startup
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create badger dir: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	c := &BadgerCache{db: db, ttl: ttl, logger: logger}
	if dir != "" {
		c.stopGC = make(chan struct{})
		c.gcWg.Add(1)
		go c.runGC()
	}
	return c, nil
}

var _ ports.CacheStore = (*BadgerCache)(nil)

// Get returns sentinel.ErrNotFound when the key is absent or expired.
func (c *BadgerCache) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, nil
}

func (c *BadgerCache) Set(_ context.Context, key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (c *BadgerCache) Health(context.Context) error {
	if c.db.IsClosed() {
		return sentinel.ErrUnavailable
	}
	return nil
}

// Close stops value-log GC and closes the database.
func (c *BadgerCache) Close() error {
	if c.stopGC != nil {
		close(c.stopGC)
		c.gcWg.Wait()
		c.stopGC = nil
	}
	return c.db.Close()
}

func (c *BadgerCache) runGC() {
	defer c.gcWg.Done()
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := c.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					c.logger.Warn("badger value log GC failed", "error", err)
				}
				break
			}
		case <-c.stopGC:
			return
		}
	}
}

// badgerLogger routes Badger's printf logging onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
