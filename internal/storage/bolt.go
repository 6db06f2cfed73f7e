package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var defaultBucket = []byte("local")

// Bolt is the durable store, one bbolt file per process.
type Bolt struct {
	hub
	db     *bolt.DB
	bucket []byte
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: failed to create bucket: %w", err)
	}

	log.Info().Str("path", path).Msg("storage: durable store opened")
	return &Bolt{db: db, bucket: defaultBucket}, nil
}

func (b *Bolt) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction.
		out = clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Put(key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("storage: failed to put %s: %w", key, err)
	}

	b.publish(key, Event{Value: clone(value)})
	return nil
}

func (b *Bolt) Delete(key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("storage: failed to delete %s: %w", key, err)
	}

	b.publish(key, Event{Deleted: true})
	return nil
}

func (b *Bolt) Close() error {
	log.Info().Msg("storage: durable store closed")
	return b.db.Close()
}
