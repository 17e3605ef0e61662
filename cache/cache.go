/*
Package cache stores small encoded values, like spatial index hints, in
memory, in an embedded badger database or in redis.
*/
package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/logging"
)

var log = logging.NewLogger("cache")

type Cache interface {
	// Get returns the value of key and false if key is not cached.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Missing keys are no error.
	Delete(ctx context.Context, key string) error
	Close() error
}

const keyPrefix = "osmextract:"

// Key returns a fixed length cache key for the given parts.
func Key(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		h.WriteString(p)
		h.Write([]byte{0})
	}
	return keyPrefix + strconv.FormatUint(h.Sum64(), 16)
}

type Config struct {
	Type       string `yaml:"type"`
	Size       int    `yaml:"size"`
	Dir        string `yaml:"dir"`
	RedisAddr  string `yaml:"redis_addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Open returns the cache configured by conf. An empty or "none" type
// returns a nil Cache.
func Open(ctx context.Context, conf Config) (Cache, error) {
	ttl := time.Duration(conf.TTLSeconds) * time.Second
	typ := strings.ToLower(conf.Type)
	if typ != "" && typ != "none" {
		log.Printf("using %s hint cache", typ)
	}
	switch typ {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(conf.Size)
	case "badger":
		return NewBadger(conf.Dir, ttl)
	case "redis":
		return NewRedis(ctx, conf.RedisAddr, ttl)
	}
	return nil, errors.Errorf("unknown cache type %q", conf.Type)
}
