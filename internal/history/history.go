package history

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Entry is one recorded explain result.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Index     string          `json:"index"`
	Shard     int             `json:"shard"`
	Primary   bool            `json:"primary"`
	// Explanation is the rendered explain document as served to the caller.
	Explanation json.RawMessage `json:"explanation"`
}

// Store keeps explain results in BadgerDB so past allocation decisions can be
// reviewed after the cluster state has moved on.
type Store struct {
	db            *badger.DB
	retentionDays int
	log           *logrus.Entry
}

// Open creates a history store at path. An empty path opens an in-memory
// database, used by tests.
func Open(path string, retentionDays int) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	if retentionDays == 0 {
		retentionDays = 30
	}

	return &Store{
		db:            db,
		retentionDays: retentionDays,
		log:           logrus.WithField("component", "history"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key format: "explain:{index}:{shard}:{unix_nano_padded}". The zero padding
// keeps lexical key order equal to chronological order within one shard.
func entryKey(index string, shard int, ts time.Time) []byte {
	return []byte(fmt.Sprintf("explain:%s:%d:%020d", index, shard, ts.UnixNano()))
}

func shardPrefix(index string, shard int) []byte {
	return []byte(fmt.Sprintf("explain:%s:%d:", index, shard))
}

var allPrefix = []byte("explain:")

// Record stores an explain result.
func (s *Store) Record(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.Index, entry.Shard, entry.Timestamp), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	return nil
}

// Query returns the recorded entries for a shard within the time range,
// oldest first. Capped at limit entries when limit is positive.
func (s *Store) Query(index string, shard int, start, end time.Time, limit int) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = shardPrefix(index, shard)
		it := txn.NewIterator(opts)
		defer it.Close()

		startKey := entryKey(index, shard, start)
		endKey := entryKey(index, shard, end)

		for it.Seek(startKey); it.Valid(); it.Next() {
			item := it.Item()
			if string(item.Key()) > string(endKey) {
				break
			}

			err := item.Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					s.log.WithError(err).Error("Failed to unmarshal history entry")
					return nil
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}

			if limit > 0 && len(entries) >= limit {
				break
			}
		}

		return nil
	})

	return entries, err
}

// Prune removes entries older than the retention period and returns how many
// were deleted.
func (s *Store) Prune() (int, error) {
	cutoff := time.Now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour).UnixNano()
	removed := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = allPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts, ok := timestampFromKey(key)
			if !ok {
				continue
			}
			if ts < cutoff {
				stale = append(stale, key)
			}
		}

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune history: %w", err)
	}

	return removed, nil
}

// RunPruner prunes on the given interval until the context's channel closes.
func (s *Store) RunPruner(done <-chan struct{}, interval time.Duration, onPrune func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			removed, err := s.Prune()
			if err != nil {
				s.log.WithError(err).Error("History prune failed")
				continue
			}
			if removed > 0 {
				s.log.WithField("removed", removed).Info("Pruned explain history")
			}
			if onPrune != nil {
				onPrune(removed)
			}
		}
	}
}

// timestampFromKey parses the trailing nanosecond timestamp out of an entry
// key.
func timestampFromKey(key []byte) (int64, bool) {
	k := string(key)
	if len(k) < 21 {
		return 0, false
	}
	ts, err := strconv.ParseInt(k[len(k)-20:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Stats summarizes the stored history.
type Stats struct {
	Entries int       `json:"entries"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// GetStats counts the stored entries and their time span.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = allPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			stats.Entries++
			ts, ok := timestampFromKey(it.Item().Key())
			if !ok {
				continue
			}
			t := time.Unix(0, ts)
			if stats.Oldest.IsZero() || t.Before(stats.Oldest) {
				stats.Oldest = t
			}
			if stats.Newest.IsZero() || t.After(stats.Newest) {
				stats.Newest = t
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
