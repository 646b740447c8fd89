// Package storage is the key-value store behind challenges, session
// revocations and pending user operations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiry time.Duration) error
	// GetDel reads and removes key in one step, so a value is consumed once.
	GetDel(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context, prefix string) (int, error)
	Close() error
}

func SetJSON(ctx context.Context, s Storage, key string, v interface{}, expiry time.Duration) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(buf), expiry)
}

func GetJSON(ctx context.Context, s Storage, key string, v interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
