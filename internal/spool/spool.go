// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package spool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/logging"
)

// Errors
var (
	// ErrSpoolClosed is returned when the spool is closed.
	ErrSpoolClosed = errors.New("spool is closed")

	// ErrEmptyPath is returned when no directory is configured.
	ErrEmptyPath = errors.New("spool path cannot be empty")
)

// Key prefixes. Event keys end in a big-endian ordinal so iteration
// returns events in the order they were saved.
const (
	prefixEvent = "event:"
	keySequence = "meta:sequence"
)

// Config holds spool settings.
type Config struct {
	// Path is the directory where BadgerDB stores its files. Ignored when
	// InMemory is set.
	Path string

	// SyncWrites forces fsync on every write.
	SyncWrites bool

	// Compression enables Snappy compression of stored events.
	Compression bool

	// CloseTimeout bounds Close. Default: 30s
	CloseTimeout time.Duration

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		SyncWrites:   true,
		Compression:  true,
		CloseTimeout: 30 * time.Second,
	}
}

// entry is the stored envelope around a spooled event.
type entry struct {
	ID      string          `json:"id"`
	SavedAt time.Time       `json:"saved_at"`
	Event   json.RawMessage `json:"event"`
}

// BadgerSpool keeps audit events that could not be persisted before
// shutdown so the next processor run can replay them.
type BadgerSpool struct {
	db     *badger.DB
	seq    *badger.Sequence
	config Config

	mu     sync.RWMutex
	closed bool
}

var _ audit.Spool = (*BadgerSpool)(nil)

// Open opens (or creates) the spool described by cfg.
func Open(cfg Config) (*BadgerSpool, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, ErrEmptyPath
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 30 * time.Second
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	// Spools hold at most one shutdown's worth of events.
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), 256)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open spool sequence: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("in_memory", cfg.InMemory).
		Msg("Audit spool opened")

	return &BadgerSpool{db: db, seq: seq, config: cfg}, nil
}

func (s *BadgerSpool) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSpoolClosed
	}
	return nil
}

func eventKey(n uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], n)
	return key
}

// Save appends events after anything already spooled.
func (s *BadgerSpool) Save(ctx context.Context, events []*audit.Event) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	now := time.Now().UTC()
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		data, err := json.Marshal(&entry{ID: uuid.NewString(), SavedAt: now, Event: payload})
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("next spool key: %w", err)
		}
		if err := wb.Set(eventKey(n), data); err != nil {
			return fmt.Errorf("write to BadgerDB: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush spool batch: %w", err)
	}
	logging.Debug().Int("events", len(events)).Msg("Audit events spooled")
	return nil
}

// Load returns spooled events in save order. Entries that fail to decode
// are logged and skipped.
func (s *BadgerSpool) Load(ctx context.Context) ([]*audit.Event, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var events []*audit.Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEvent)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var env entry
			var e audit.Event
			err := item.Value(func(val []byte) error {
				if err := json.Unmarshal(val, &env); err != nil {
					return err
				}
				return json.Unmarshal(env.Event, &e)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", fmt.Sprintf("%x", item.Key())).Msg("Skipping malformed spool entry")
				continue
			}
			events = append(events, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate spool: %w", err)
	}
	return events, nil
}

// Clear removes every spooled event.
func (s *BadgerSpool) Clear(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.DropPrefix([]byte(prefixEvent)); err != nil {
		return fmt.Errorf("clear spool: %w", err)
	}
	return nil
}

// Len returns the number of spooled events.
func (s *BadgerSpool) Len() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEvent)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// RunGC reclaims value log space left by cleared entries.
func (s *BadgerSpool) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close releases the key sequence and closes the database within
// CloseTimeout.
func (s *BadgerSpool) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release spool sequence")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Audit spool closed")
		return nil
	case <-time.After(s.config.CloseTimeout):
		logging.Warn().Dur("timeout", s.config.CloseTimeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", s.config.CloseTimeout)
	}
}
