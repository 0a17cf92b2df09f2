// Package redis provides a Redis-backed fast layer. Records survive a
// gateway restart, and writes are compare-and-swap so a second process
// touching the same session cannot silently overwrite an action. Venue
// calls are still serialized per process only, so a session should be
// driven by one gateway at a time.
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis fast layer
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "sessiongate:fast:"
	KeyPrefix string
}

// Store implements the fast layer on Redis. Keys never expire: losing a
// delegated copy would lose custody.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a new Redis-based fast layer.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "sessiongate:fast:"
	}
	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Load returns the stored record bytes, or nil if absent.
func (s *Store) Load(ctx context.Context, id uuid.UUID) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fast record %s: %w", id, err)
	}
	return data, nil
}

// Store replaces the record bytes for id.
func (s *Store) Store(ctx context.Context, id uuid.UUID, data []byte) error {
	if err := s.client.Set(ctx, s.key(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set fast record %s: %w", id, err)
	}
	return nil
}

// CompareAndSwap replaces the record for id only while it still equals old.
// The key is watched, so a write from another client between the read and
// the swap aborts the transaction and reports false.
func (s *Store) CompareAndSwap(ctx context.Context, id uuid.UUID, old, data []byte) (bool, error) {
	key := s.key(id)
	swapped := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(current, old) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap fast record %s: %w", id, err)
	}
	return swapped, nil
}

// Remove deletes the record for id.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete fast record %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id uuid.UUID) string {
	return s.keyPrefix + id.String()
}
