package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Provider is a byte-oriented key/value cache with per-entry TTLs.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// GetJSON decodes the entry under key into out. It reports false on a miss,
// a backend error or an undecodable entry.
func GetJSON(ctx context.Context, p Provider, key string, out any) bool {
	data, err := p.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON stores value under key as JSON. A zero or negative ttl skips the write.
func SetJSON(ctx context.Context, p Provider, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.Set(ctx, key, payload, ttl)
}

// NoopProvider never stores anything.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

// SetNX reports success without storing.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
