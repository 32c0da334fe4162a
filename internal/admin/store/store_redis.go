package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"intake/internal/solicitud/models"
)

var errCorruptSnapshot = errors.New("decode fallback snapshot")

// maxTxRetries bounds optimistic-lock retries on concurrent writers.
const maxTxRetries = 5

// RedisStore persists the snapshot as one JSON array under Key, so
// several proxy replicas serve the same fallback.
type RedisStore struct {
	// mu serializes writers in this process; WATCH covers other replicas.
	mu     sync.Mutex
	client redis.UniversalClient
	key    string
	ids    IDs
	now    func() time.Time
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, key: Key, now: time.Now}
}

// Replace overwrites the snapshot, carrying ids over from the stored one.
//
// Side effects: performs a WATCHed Redis SET on Key.
func (s *RedisStore) Replace(ctx context.Context, records []models.Application) error {
	return s.update(ctx, true, func(previous []models.Application) ([]models.Application, error) {
		snapshot := slices.Clone(records)
		carryIDs(previous, snapshot)
		stamp(&s.ids, s.now(), snapshot)
		return snapshot, nil
	})
}

// Append adds one record under WATCH so concurrent writers do not lose
// each other's updates.
func (s *RedisStore) Append(ctx context.Context, record models.Application) (models.Application, error) {
	batch := []models.Application{record}
	stamp(&s.ids, s.now(), batch)
	err := s.update(ctx, false, func(records []models.Application) ([]models.Application, error) {
		return append(records, batch[0]), nil
	})
	if err != nil {
		return models.Application{}, err
	}
	return batch[0], nil
}

// List returns the snapshot, empty when nothing has been stored yet.
func (s *RedisStore) List(ctx context.Context) ([]models.Application, error) {
	return s.load(ctx, s.client)
}

// Delete removes the record with id.
//
// Errors: ErrNotFound when no record matches.
func (s *RedisStore) Delete(ctx context.Context, id string) (models.Application, error) {
	var removed models.Application
	err := s.update(ctx, false, func(records []models.Application) ([]models.Application, error) {
		i := slices.IndexFunc(records, func(r models.Application) bool { return r.ID == id })
		if i < 0 {
			return nil, ErrNotFound
		}
		removed = records[i]
		return slices.Delete(records, i, i+1), nil
	})
	if err != nil {
		return models.Application{}, err
	}
	return removed, nil
}

// update runs mutate on the stored snapshot under WATCH. With overwrite set,
// an undecodable snapshot is treated as empty instead of failing.
func (s *RedisStore) update(ctx context.Context, overwrite bool, mutate func([]models.Application) ([]models.Application, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txf := func(tx *redis.Tx) error {
		records, err := s.load(ctx, tx)
		if overwrite && errors.Is(err, errCorruptSnapshot) {
			records, err = nil, nil
		}
		if err != nil {
			return err
		}
		records, err = mutate(records)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("encode fallback snapshot: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update fallback snapshot: %w", redis.TxFailedErr)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter) ([]models.Application, error) {
	data, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.Application{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fallback snapshot: %w", err)
	}
	var records []models.Application
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptSnapshot, err)
	}
	return records, nil
}
