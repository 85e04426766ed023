// Package localstore persists the client's mirror on disk so a restarted
// client can render immediately and resume syncing from its watermark.
package localstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/Doesntmeananything/sashay/internal/model"
)

const (
	userPrefix    = "user/"
	messagePrefix = "message/"
	watermarkKey  = "meta/watermark"
)

// Store is a Badger-backed keyed mirror of users and chat messages.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the mirror database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening local store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a mirror that lives only as long as the process.
// Test hook, also used by one-shot CLI commands that need no durability.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory local store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutUser upserts a user by id.
func (s *Store) PutUser(u *model.User) error {
	return s.putJSON(userPrefix+u.ID, u)
}

// PutChatMessage upserts a chat message by id.
func (s *Store) PutChatMessage(m *model.ChatMessage) error {
	return s.putJSON(messagePrefix+m.ID, m)
}

// DeleteChatMessage removes a message. Deleting an absent id is a no-op.
func (s *Store) DeleteChatMessage(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(messagePrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Users returns every stored user, sorted by username.
func (s *Store) Users() ([]*model.User, error) {
	var users []*model.User
	if err := s.scanJSON(userPrefix, func(data []byte) error {
		var u model.User
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		users = append(users, &u)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// ChatMessages returns every stored message in timeline order.
func (s *Store) ChatMessages() ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	if err := s.scanJSON(messagePrefix, func(data []byte) error {
		var m model.ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		msgs = append(msgs, &m)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

// SetWatermark records the id of the last event folded into the mirror.
func (s *Store) SetWatermark(id int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(watermarkKey), buf[:])
	})
}

// Watermark returns the last recorded watermark, or 0 when none is set.
func (s *Store) Watermark() (int64, error) {
	var id int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(watermarkKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt watermark value of %d bytes", len(val))
			}
			id = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	return id, err
}

// Reset drops everything and stores the given snapshot wholesale. Used after
// a bootstrap, which always supersedes whatever the mirror held before.
func (s *Store) Reset(users []*model.User, messages []*model.ChatMessage, watermark int64) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("dropping local store: %w", err)
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, u := range users {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if err := wb.Set([]byte(userPrefix+u.ID), data); err != nil {
			return err
		}
	}
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := wb.Set([]byte(messagePrefix+m.ID), data); err != nil {
			return err
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(watermark))
	if err := wb.Set([]byte(watermarkKey), buf[:]); err != nil {
		return err
	}
	return wb.Flush()
}

func (s *Store) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) scanJSON(prefix string, fn func(data []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
