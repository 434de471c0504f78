package pantry

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	draftBucketName = "drafts"
	scanBucketName  = "scans"

	// The service manages a single in-progress draft.
	currentDraftKey = "current"
)

// StoredDraft is the persisted form of the in-progress draft together
// with its touched-field set, so an interrupted session can be
// restored without losing user edits.
type StoredDraft struct {
	Draft   InventoryDraft `json:"draft"`
	Touched []Field        `json:"touched"`
}

// ScanRecord is one entry in the scan history.
type ScanRecord struct {
	ID              string    `json:"id"`
	Barcode         string    `json:"barcode"`
	Format          string    `json:"format,omitempty"`
	ProductName     string    `json:"product_name"`
	Resolved        bool      `json:"resolved"`
	SnapshotPath    string    `json:"snapshot_path,omitempty"`
	SubmittedItemID string    `json:"submitted_item_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// DB defines the interface for database operations
type DB interface {
	// SaveDraft persists the current draft
	SaveDraft(stored *StoredDraft) error

	// LoadDraft returns the persisted draft, or nil when none exists
	LoadDraft() (*StoredDraft, error)

	// DeleteDraft removes the persisted draft
	DeleteDraft() error

	// SaveScan saves a scan history record
	SaveScan(scan *ScanRecord) error

	// GetScan retrieves a scan record by ID
	GetScan(id string) (*ScanRecord, error)

	// ListScans returns all scan records
	ListScans() ([]*ScanRecord, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(draftBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(scanBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Handle exposes the underlying bbolt database so other packages can
// open their own buckets on the same file.
func (b *BoltDB) Handle() *bbolt.DB {
	return b.db
}

// SaveDraft persists the current draft.
func (b *BoltDB) SaveDraft(stored *StoredDraft) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshaling draft: %w", err)
		}
		return tx.Bucket([]byte(draftBucketName)).Put([]byte(currentDraftKey), data)
	})
}

// LoadDraft returns the persisted draft, or nil when none exists.
func (b *BoltDB) LoadDraft() (*StoredDraft, error) {
	var stored *StoredDraft
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(draftBucketName)).Get([]byte(currentDraftKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stored)
	})
	if err != nil {
		return nil, fmt.Errorf("loading draft: %w", err)
	}
	return stored, nil
}

// DeleteDraft removes the persisted draft.
func (b *BoltDB) DeleteDraft() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(draftBucketName)).Delete([]byte(currentDraftKey))
	})
}

// SaveScan saves a scan history record.
func (b *BoltDB) SaveScan(scan *ScanRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(scan)
		if err != nil {
			return fmt.Errorf("marshaling scan record: %w", err)
		}
		return tx.Bucket([]byte(scanBucketName)).Put([]byte(scan.ID), data)
	})
}

// GetScan retrieves a scan record by ID.
func (b *BoltDB) GetScan(id string) (*ScanRecord, error) {
	var scan *ScanRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(scanBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("scan record not found: %s", id)
		}
		return json.Unmarshal(data, &scan)
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// ListScans returns all scan records.
func (b *BoltDB) ListScans() ([]*ScanRecord, error) {
	scans := make([]*ScanRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(scanBucketName)).ForEach(func(k, v []byte) error {
			var scan ScanRecord
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("unmarshaling scan record: %w", err)
			}
			scans = append(scans, &scan)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return scans, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
