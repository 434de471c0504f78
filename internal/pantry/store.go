package pantry

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pantrypal/pantry-scan/internal/product"
)

// IDGenerator generates unique IDs for drafts and scan records.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// DraftStore holds the single in-progress InventoryDraft for the
// current add-item session. It merges newly resolved product data into
// the draft without discarding fields the user has already edited by
// hand: a field the user touched is never overwritten by a later scan.
type DraftStore struct {
	mu      sync.Mutex
	draft   InventoryDraft
	touched map[Field]bool

	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewDraftStore creates a DraftStore with default ID generator and
// time source, seeded with a valid default draft.
func NewDraftStore() *DraftStore {
	return NewDraftStoreWithDeps(&uuidGenerator{}, &defaultTimeSource{})
}

// NewDraftStoreWithDeps creates a DraftStore with custom dependencies
// for testing.
func NewDraftStoreWithDeps(idGen IDGenerator, timeSrc TimeSource) *DraftStore {
	s := &DraftStore{
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
	s.Initialize()
	return s
}

// Initialize resets the store to a fresh draft with system defaults
// and clears all touched-field state. Returns the new draft.
func (s *DraftStore) Initialize() InventoryDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = newDraft(s.idGenerator.Generate(), s.timeSource.Now())
	s.touched = make(map[Field]bool)
	return copyDraft(s.draft)
}

// Restore loads a previously persisted draft and its touched set, so
// an interrupted session survives a restart.
func (s *DraftStore) Restore(draft InventoryDraft, touched []Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = copyDraft(draft)
	s.touched = make(map[Field]bool, len(touched))
	for _, f := range touched {
		s.touched[f] = true
	}
}

// ApplyResolved merges a resolved product record into the draft,
// overwriting only fields the user has not manually edited.
func (s *DraftStore) ApplyResolved(record *product.Record) InventoryDraft {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeSource.Now()
	category := categoryForTags(record.Categories)

	// Provenance fields follow the scan unconditionally.
	s.draft.Barcode = record.Barcode
	s.draft.ImageURL = record.ImageURL
	s.draft.Nutrition = copyNutrition(record.Nutrition)

	if !s.touched[FieldName] {
		s.draft.Name = record.Name
	}
	if !s.touched[FieldBrand] {
		s.draft.Brand = record.Brand
	}
	if !s.touched[FieldDescription] {
		s.draft.Description = descriptionFor(record)
	}
	if !s.touched[FieldCategory] {
		s.draft.Category = category
	}
	if !s.touched[FieldLocation] {
		s.draft.Location = locationForCategory(category)
	}
	if !s.touched[FieldQuantity] {
		s.draft.Quantity = 1
	}
	if !s.touched[FieldUnit] {
		s.draft.Unit = UnitPieces
	}
	if !s.touched[FieldExpiration] {
		s.draft.ExpirationDate = now.AddDate(0, 0, shelfLifeDays(category))
	}
	if !s.touched[FieldNotes] {
		s.draft.Notes = provenanceNotes(record)
	}
	s.draft.UpdatedAt = now

	return copyDraft(s.draft)
}

// Edit marks a field as user-touched and updates it. The value is the
// JSON-decoded form the transport layer hands over.
func (s *DraftStore) Edit(field Field, value any) (InventoryDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case FieldName:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		if strings.TrimSpace(str) == "" {
			return InventoryDraft{}, &ValidationError{Field: string(field), Message: "name must not be empty"}
		}
		s.draft.Name = str
	case FieldDescription:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		s.draft.Description = str
	case FieldBrand:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		s.draft.Brand = str
	case FieldNotes:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		s.draft.Notes = str
	case FieldCategory:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		category, err := ParseCategory(str)
		if err != nil {
			return InventoryDraft{}, err
		}
		s.draft.Category = category
	case FieldLocation:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		location, err := ParseLocation(str)
		if err != nil {
			return InventoryDraft{}, err
		}
		s.draft.Location = location
	case FieldUnit:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		unit, err := ParseUnit(str)
		if err != nil {
			return InventoryDraft{}, err
		}
		s.draft.Unit = unit
	case FieldQuantity:
		num, err := numberValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		if num < 0 {
			return InventoryDraft{}, &ValidationError{Field: string(field), Message: "quantity must be >= 0"}
		}
		s.draft.Quantity = num
	case FieldPrice:
		num, err := numberValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		if num < 0 || num != math.Trunc(num) {
			return InventoryDraft{}, &ValidationError{Field: string(field), Message: "price must be a non-negative whole number of cents"}
		}
		s.draft.PriceCents = int(num)
	case FieldExpiration:
		str, err := stringValue(field, value)
		if err != nil {
			return InventoryDraft{}, err
		}
		date, err := time.Parse("2006-01-02", str)
		if err != nil {
			return InventoryDraft{}, &ValidationError{Field: string(field), Message: "expiration date must be YYYY-MM-DD"}
		}
		s.draft.ExpirationDate = date
	default:
		return InventoryDraft{}, &ValidationError{Field: string(field), Message: "unknown field"}
	}

	s.touched[field] = true
	s.draft.UpdatedAt = s.timeSource.Now()
	return copyDraft(s.draft), nil
}

// Snapshot returns the current immutable view of the draft.
func (s *DraftStore) Snapshot() InventoryDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDraft(s.draft)
}

// TouchedFields returns the fields the user has edited by hand.
func (s *DraftStore) TouchedFields() []Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make([]Field, 0, len(s.touched))
	for f := range s.touched {
		fields = append(fields, f)
	}
	return fields
}

func stringValue(field Field, value any) (string, error) {
	str, ok := value.(string)
	if !ok {
		return "", &ValidationError{Field: string(field), Message: "expected a string value"}
	}
	return str, nil
}

func numberValue(field Field, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, &ValidationError{Field: string(field), Message: "expected a numeric value"}
	}
}

// provenanceNotes embeds the source barcode and a nutrition summary in
// the draft notes.
func provenanceNotes(record *product.Record) string {
	parts := []string{fmt.Sprintf("Scanned barcode %s", record.Barcode)}
	if !record.Resolved && record.Notes != "" {
		parts = append(parts, record.Notes)
	}
	if n := record.Nutrition; n != nil {
		parts = append(parts, fmt.Sprintf("Per 100g: %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat",
			n.Calories, n.Protein, n.Carbs, n.Fat))
	}
	return strings.Join(parts, ". ")
}

// descriptionFor builds a short description from the resolved record.
func descriptionFor(record *product.Record) string {
	if !record.Resolved {
		return ""
	}
	parts := make([]string, 0, 2)
	if record.Brand != "" {
		parts = append(parts, record.Brand)
	}
	if len(record.Categories) > 0 {
		parts = append(parts, record.Categories[0])
	}
	return strings.Join(parts, " - ")
}

func copyDraft(d InventoryDraft) InventoryDraft {
	out := d
	out.Nutrition = copyNutrition(d.Nutrition)
	return out
}

func copyNutrition(n *product.NutritionInfo) *product.NutritionInfo {
	if n == nil {
		return nil
	}
	out := *n
	out.Allergens = append([]string(nil), n.Allergens...)
	return &out
}
