package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/juju/errors"
	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"
)

const _boltFileMode = 0600

var (
	_syncStateBucket = []byte("SyncState")
	_idMappingBucket = []byte("IDMapping")
	_conflictBucket  = []byte("Conflict")
	_historyBucket   = []byte("SyncHistory")

	codec = jsoniter.ConfigCompatibleWithStandardLibrary
)

// BoltStore keeps sync state in an embedded bbolt file, for field
// instances that have no separate state database.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Annotate(err, "create boltdb store")
		}
	}

	db, err := bbolt.Open(path, _boltFileMode, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Annotate(err, "open boltdb")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{_syncStateBucket, _idMappingBucket, _conflictBucket, _historyBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) get(bucket, key []byte, v any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return errors.NotFoundf("%s %s", bucket, key)
		}
		return codec.Unmarshal(data, v)
	})
}

func (s *BoltStore) put(bucket, key []byte, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *BoltStore) GetSyncState(ctx context.Context, target string) (*SyncState, error) {
	var state SyncState
	err := s.get(_syncStateBucket, []byte(target), &state)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) UpdateSyncState(ctx context.Context, state *SyncState) error {
	state.UpdatedAt = time.Now().UTC()
	return s.put(_syncStateBucket, []byte(state.Target), state)
}

func (s *BoltStore) DeleteSyncState(ctx context.Context, target string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(_syncStateBucket).Delete([]byte(target)); err != nil {
			return err
		}
		prefix := mappingPrefix(target)
		c := tx.Bucket(_idMappingBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func mappingPrefix(target string) []byte {
	return append([]byte(target), 0)
}

func mappingKey(m *IDMapping) []byte {
	key := mappingPrefix(m.Target)
	key = append(key, m.Kind...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint64(key, uint64(m.LocalID))
}

func (s *BoltStore) SaveIDMapping(ctx context.Context, mapping *IDMapping) error {
	return s.put(_idMappingBucket, mappingKey(mapping), mapping)
}

func (s *BoltStore) ListIDMappings(ctx context.Context, target string) ([]*IDMapping, error) {
	var mappings []*IDMapping
	prefix := mappingPrefix(target)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(_idMappingBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var m IDMapping
			if err := codec.Unmarshal(v, &m); err != nil {
				return err
			}
			mappings = append(mappings, &m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})
	return mappings, nil
}

func (s *BoltStore) CreateConflict(ctx context.Context, conflict *Conflict) error {
	return s.put(_conflictBucket, []byte(conflict.ID), conflict)
}

func (s *BoltStore) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	var c Conflict
	err := s.get(_conflictBucket, []byte(id), &c)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*Conflict, error) {
	var all []*Conflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(_conflictBucket).ForEach(func(_, v []byte) error {
			var c Conflict
			if err := codec.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.Resolved == resolved {
				all = append(all, &c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DetectedAt.After(all[j].DetectedAt) })
	return page(all, limit, offset), nil
}

func (s *BoltStore) ResolveConflict(ctx context.Context, id string, strategy string, resolvedData []byte) error {
	var c Conflict
	if err := s.get(_conflictBucket, []byte(id), &c); err != nil {
		return err
	}
	c.Resolved = true
	c.ResolutionStrategy = sql.NullString{String: strategy, Valid: true}
	c.ResolvedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	c.ResolvedData = resolvedData
	return s.put(_conflictBucket, []byte(id), &c)
}

func (s *BoltStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	return s.put(_historyBucket, []byte(history.ID), history)
}

func (s *BoltStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	var existing SyncHistory
	if err := s.get(_historyBucket, []byte(history.ID), &existing); err != nil {
		return err
	}
	return s.put(_historyBucket, []byte(history.ID), history)
}

func (s *BoltStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	var all []*SyncHistory
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(_historyBucket).ForEach(func(_, v []byte) error {
			var h SyncHistory
			if err := codec.Unmarshal(v, &h); err != nil {
				return err
			}
			all = append(all, &h)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	return page(all, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
