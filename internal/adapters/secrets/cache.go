// Package secrets resolves credentials from AWS Secrets Manager, HashiCorp
// Vault, or the local environment.
package secrets

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

const defaultCacheSize = 128

// secretCache holds recently read secrets for a fixed TTL.
// A disabled cache never stores anything.
type secretCache struct {
	lru *expirable.LRU[string, *ports.Secret]
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	if !enabled || ttl <= 0 {
		return &secretCache{}
	}
	return &secretCache{lru: expirable.NewLRU[string, *ports.Secret](defaultCacheSize, nil, ttl)}
}

func (c *secretCache) get(key string) *ports.Secret {
	if c.lru == nil {
		return nil
	}
	if s, ok := c.lru.Get(key); ok {
		return s
	}
	return nil
}

func (c *secretCache) set(key string, secret *ports.Secret) {
	if c.lru != nil {
		c.lru.Add(key, secret)
	}
}

func (c *secretCache) invalidate(key string) {
	if c.lru != nil {
		c.lru.Remove(key)
	}
}
