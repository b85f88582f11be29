package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service caches scoring results. Values are stored JSON encoded so every
// layer decodes them identically.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key joins a result kind and its parameters, e.g. "prediction:SFBT:2024-06-03".
func Key(kind string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(kind)
	for _, p := range parts {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// Remember returns the cached value for key, or computes and stores it. A
// failed store is reported to onStoreErr and does not fail the call.
func Remember[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func() (T, error), onStoreErr func(error)) (T, error) {
	var out T
	if c == nil || ttl <= 0 {
		return load()
	}
	if err := c.Get(ctx, key, &out); err == nil {
		return out, nil
	}
	out, err := load()
	if err != nil {
		return out, err
	}
	if err := c.Set(ctx, key, out, ttl); err != nil && onStoreErr != nil {
		onStoreErr(err)
	}
	return out, nil
}

func encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: encode: %w", err)
	}
	return data, nil
}

func decode(data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: decode: %w", err)
	}
	return nil
}
