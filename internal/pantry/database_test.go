package pantry

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveDraft", func() {
		var (
			stored *StoredDraft
			err    error
		)

		BeforeEach(func() {
			stored = &StoredDraft{
				Draft: InventoryDraft{
					ID:       "draft-1",
					Name:     "Organic Bananas",
					Quantity: 3,
					Unit:     UnitPieces,
					Category: CategoryProduce,
					Location: LocationCounter,
				},
				Touched: []Field{FieldQuantity},
			}
		})

		JustBeforeEach(func() {
			err = db.SaveDraft(stored)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should persist the draft", func() {
				loaded, loadErr := db.LoadDraft()
				Expect(loadErr).NotTo(HaveOccurred())
				Expect(loaded.Draft.ID).To(Equal("draft-1"))
			})

			It("should persist the touched set", func() {
				loaded, _ := db.LoadDraft()
				Expect(loaded.Touched).To(Equal([]Field{FieldQuantity}))
			})
		})
	})

	Describe("LoadDraft", func() {
		When("no draft was persisted", func() {
			It("should return nil without an error", func() {
				loaded, err := db.LoadDraft()
				Expect(err).NotTo(HaveOccurred())
				Expect(loaded).To(BeNil())
			})
		})
	})

	Describe("DeleteDraft", func() {
		BeforeEach(func() {
			Expect(db.SaveDraft(&StoredDraft{
				Draft: InventoryDraft{ID: "draft-1", Name: "Test"},
			})).To(Succeed())
		})

		It("should remove the persisted draft", func() {
			Expect(db.DeleteDraft()).To(Succeed())
			loaded, err := db.LoadDraft()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeNil())
		})

		It("should be a no-op when no draft exists", func() {
			Expect(db.DeleteDraft()).To(Succeed())
			Expect(db.DeleteDraft()).To(Succeed())
		})
	})

	Describe("SaveScan", func() {
		var (
			scan *ScanRecord
			err  error
		)

		BeforeEach(func() {
			scan = &ScanRecord{
				ID:          "scan-1",
				Barcode:     "737628064502",
				Format:      "UPC_A",
				ProductName: "Organic Bananas",
				Resolved:    true,
				CreatedAt:   time.Now(),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveScan(scan)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the scan record", func() {
				saved, getErr := db.GetScan("scan-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Barcode).To(Equal("737628064502"))
			})
		})
	})

	Describe("GetScan", func() {
		When("the record does not exist", func() {
			It("returns the error", func() {
				_, err := db.GetScan("nonexistent")
				Expect(err).To(MatchError(ContainSubstring("scan record not found")))
			})
		})
	})

	Describe("ListScans", func() {
		When("scan records exist", func() {
			BeforeEach(func() {
				Expect(db.SaveScan(&ScanRecord{ID: "scan-1", Barcode: "737628064502", CreatedAt: time.Now()})).To(Succeed())
				Expect(db.SaveScan(&ScanRecord{ID: "scan-2", Barcode: "4006381333931", CreatedAt: time.Now()})).To(Succeed())
			})

			It("should return all records", func() {
				scans, err := db.ListScans()
				Expect(err).NotTo(HaveOccurred())
				Expect(scans).To(HaveLen(2))
			})
		})

		When("no scan records exist", func() {
			It("should return an empty list", func() {
				scans, err := db.ListScans()
				Expect(err).NotTo(HaveOccurred())
				Expect(scans).To(BeEmpty())
			})
		})
	})

	Describe("Handle", func() {
		It("should expose the underlying database", func() {
			Expect(db.Handle()).NotTo(BeNil())
		})
	})
})
