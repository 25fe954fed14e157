// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
)

// Reasons a message ends up in the store.
const (
	ReasonDecode      = "decode_error"
	ReasonRetryBudget = "retry_budget_exhausted"
)

var (
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("dead-letter store is closed")

	// ErrEntryNotFound is returned by Get and Delete for an unknown id.
	ErrEntryNotFound = errors.New("dead-letter entry not found")

	// ErrEmptyID is returned when an entry has no id.
	ErrEmptyID = errors.New("dead-letter entry id is empty")
)

const prefixEntry = "dlq:"

// Entry is one message that could not be applied. Payload holds the message
// body exactly as received.
type Entry struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject"`
	Reason    string            `json:"reason"`
	Error     string            `json:"error,omitempty"`
	Attempts  int               `json:"attempts"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists dead-lettered messages in BadgerDB so they survive restarts
// and can be inspected or purged from the command line.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg *config.DeadLetterConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("dead-letter path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = true
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Dead-letter store opened")
	return &Store{db: db}, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save writes an entry. Saving an id twice replaces the earlier entry.
func (s *Store) Save(_ context.Context, e *Entry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEntry+e.ID), data)
	})
	if err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}

	metrics.RecordDeadLetter(e.Reason)
	logging.Warn().
		Str("message_id", e.ID).
		Str("subject", e.Subject).
		Str("reason", e.Reason).
		Str("error", e.Error).
		Int("attempts", e.Attempts).
		Msg("Message dead-lettered")
	return nil
}

// Get returns the entry with id.
func (s *Store) Get(_ context.Context, id string) (*Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixEntry + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns up to limit entries, oldest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Failed to unmarshal dead-letter entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(_ context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Delete removes the entry with id.
func (s *Store) Delete(_ context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixEntry + id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("get entry: %w", err)
		}
		return txn.Delete(key)
	})
}

// Purge removes every entry and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.DropPrefix([]byte(prefixEntry)); err != nil {
		return 0, fmt.Errorf("drop entries: %w", err)
	}
	logging.Info().Int("removed", n).Msg("Dead-letter store purged")
	return n, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
