package product

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.etcd.io/bbolt"
)

const cacheBucketName = "products"

// Store defines the interface for the product resolution cache.
type Store interface {
	// GetProduct returns the cached record for a barcode, or nil when absent
	GetProduct(barcode string) (*Record, error)

	// PutProduct caches a resolved record
	PutProduct(record *Record) error
}

// BoltCache implements the Store interface on a bbolt bucket.
type BoltCache struct {
	db *bbolt.DB
}

// NewBoltCache creates the cache bucket on an open bbolt database.
func NewBoltCache(db *bbolt.DB) (*BoltCache, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating product cache bucket: %w", err)
	}
	return &BoltCache{db: db}, nil
}

// GetProduct returns the cached record for a barcode, or nil when absent.
func (c *BoltCache) GetProduct(barcode string) (*Record, error) {
	var record *Record
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucketName)).Get([]byte(barcode))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("reading product cache: %w", err)
	}
	return record, nil
}

// PutProduct caches a resolved record.
func (c *BoltCache) PutProduct(record *Record) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling product record: %w", err)
		}
		return tx.Bucket([]byte(cacheBucketName)).Put([]byte(record.Barcode), data)
	})
}

// CachingResolver wraps a Resolver with a Store so a barcode already
// seen never hits the external database again. Only resolved records
// are cached; failures stay retryable.
type CachingResolver struct {
	resolver Resolver
	store    Store
}

// NewCachingResolver creates a caching layer around a resolver.
func NewCachingResolver(resolver Resolver, store Store) *CachingResolver {
	return &CachingResolver{
		resolver: resolver,
		store:    store,
	}
}

// Resolve returns the cached record when present, otherwise delegates
// and caches a successful resolution. Cache errors degrade to a plain
// lookup; the cache is an optimization, not a dependency.
func (r *CachingResolver) Resolve(ctx context.Context, barcode string) *Record {
	cached, err := r.store.GetProduct(barcode)
	if err != nil {
		slog.Warn("Product cache read failed", "barcode", barcode, "error", err)
	} else if cached != nil {
		return cached
	}

	record := r.resolver.Resolve(ctx, barcode)
	if record.Resolved {
		if err := r.store.PutProduct(record); err != nil {
			slog.Warn("Product cache write failed", "barcode", barcode, "error", err)
		}
	}
	return record
}
