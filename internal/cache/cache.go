// Package cache stores successful translations keyed by the normalized word.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/at-ishikawa/wordbroker/internal/kv"
)

const (
	DefaultNamespace = "translation/v1"
	DefaultTTL       = 30 * 24 * time.Hour
)

// Entry is the cached payload. Transport headers are never part of it.
type Entry struct {
	Translated string    `json:"translated"`
	StoredAt   time.Time `json:"stored_at"`
}

type Cache struct {
	store     kv.Store
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

func New(store kv.Store, namespace string, ttl time.Duration) *Cache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:     store,
		namespace: strings.TrimSuffix(namespace, "/"),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Key maps a word to its namespaced key. Words differing only in case or
// surrounding whitespace share a key.
// Keys longer than kv.MaxKeyLength use the SHA-256 of the normalized word instead.
func (c *Cache) Key(word string) string {
	normalized := strings.ToLower(strings.TrimSpace(word))
	key := c.namespace + "/" + url.PathEscape(normalized)
	if len(key) <= kv.MaxKeyLength {
		return key
	}
	sum := sha256.Sum256([]byte(normalized))
	return c.namespace + "/sha256/" + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, word string) (Entry, bool, error) {
	key := c.Key(word)
	value, found, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("store.Get(%s) > %w", key, err)
	}
	if !found {
		return Entry{}, false, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("json.Unmarshal(%s) > %w", key, err)
	}
	return entry, true, nil
}

func (c *Cache) Put(ctx context.Context, word, translated string) error {
	key := c.Key(word)
	value, err := json.Marshal(Entry{
		Translated: translated,
		StoredAt:   c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("json.Marshal > %w", err)
	}
	if err := c.store.Set(ctx, key, string(value), c.ttl); err != nil {
		return fmt.Errorf("store.Set(%s) > %w", key, err)
	}
	return nil
}
