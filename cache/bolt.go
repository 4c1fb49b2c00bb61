package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("cache")

// Bolt is the durable local tier, backed by a bbolt database. Entries are
// stored as an 8-byte big-endian expiry (unix nanoseconds) followed by the
// raw value; expired entries are treated as misses on read and removed by
// the periodic sweep.
type Bolt struct {
	db   *bolt.DB
	stop chan struct{}
}

// NewBolt opens (or creates) the database at path and starts a background
// sweep that purges expired entries every sweepInterval.
func NewBolt(path string, sweepInterval time.Duration) (*Bolt, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for bolt cache: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	b := &Bolt{db: db, stop: make(chan struct{})}
	if sweepInterval > 0 {
		go b.sweep(sweepInterval)
	}
	return b, nil
}

func encodeEntry(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(time.Now().Add(ttl).UnixNano()))
	copy(buf[8:], value)
	return buf
}

func decodeEntry(raw []byte) ([]byte, bool) {
	if len(raw) < 8 {
		return nil, false
	}
	expiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(raw)))
	if time.Now().After(expiresAt) {
		return nil, false
	}
	value := make([]byte, len(raw)-8)
	copy(value, raw[8:])
	return value, true
}

func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	expired := false

	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return ErrMiss
		}
		v, ok := decodeEntry(raw)
		if !ok {
			expired = true
			return ErrMiss
		}
		value = v
		return nil
	})
	if err != nil {
		if expired {
			// Lazy purge; sweep handles the rest.
			_ = b.Delete(ctx, key)
		}
		return nil, err
	}
	return value, nil
}

func (b *Bolt) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), encodeEntry(value, ttl))
	})
}

func (b *Bolt) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (b *Bolt) Clear(ctx context.Context, prefix string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		c := bkt.Cursor()

		var doomed [][]byte
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			doomed = append(doomed, key)
		}
		for _, k := range doomed {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Len(ctx context.Context) (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n, err
}

// Close stops the sweep and closes the database.
func (b *Bolt) Close() error {
	close(b.stop)
	return b.db.Close()
}

func (b *Bolt) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.purgeExpired()
		}
	}
}

func (b *Bolt) purgeExpired() {
	now := time.Now()
	_ = b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		c := bkt.Cursor()

		var doomed [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) < 8 {
				continue
			}
			expiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(v)))
			if now.After(expiresAt) {
				key := make([]byte, len(k))
				copy(key, k)
				doomed = append(doomed, key)
			}
		}
		for _, k := range doomed {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Store = (*Bolt)(nil)
