package storage

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the short-lived store: bounded in size, entries expire after ttl.
type Cache struct {
	hub
	lru *expirable.LRU[string, []byte]
}

func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *Cache) Get(key string) ([]byte, error) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (c *Cache) Put(key string, value []byte) error {
	c.lru.Add(key, clone(value))
	c.publish(key, Event{Value: clone(value)})
	return nil
}

func (c *Cache) Delete(key string) error {
	c.lru.Remove(key)
	c.publish(key, Event{Deleted: true})
	return nil
}
