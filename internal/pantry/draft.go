package pantry

import (
	"fmt"
	"strings"
	"time"

	"github.com/pantrypal/pantry-scan/internal/product"
)

// Unit is the closed set of quantity units.
type Unit string

const (
	UnitPieces      Unit = "pcs"
	UnitGrams       Unit = "g"
	UnitKilograms   Unit = "kg"
	UnitMilliliters Unit = "ml"
	UnitLiters      Unit = "l"
	UnitOunces      Unit = "oz"
	UnitPounds      Unit = "lb"
	UnitPackages    Unit = "pack"
)

var validUnits = map[Unit]bool{
	UnitPieces: true, UnitGrams: true, UnitKilograms: true,
	UnitMilliliters: true, UnitLiters: true, UnitOunces: true,
	UnitPounds: true, UnitPackages: true,
}

// Valid reports whether the unit belongs to the closed set.
func (u Unit) Valid() bool { return validUnits[u] }

// ParseUnit validates a unit string at the boundary.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if !u.Valid() {
		return "", &ValidationError{Field: "unit", Message: fmt.Sprintf("invalid unit %q", s)}
	}
	return u, nil
}

// Category is the closed set of item categories.
type Category string

const (
	CategoryProduce    Category = "produce"
	CategoryDairy      Category = "dairy"
	CategoryMeat       Category = "meat"
	CategorySeafood    Category = "seafood"
	CategoryGrains     Category = "grains"
	CategorySnacks     Category = "snacks"
	CategoryBeverages  Category = "beverages"
	CategoryCondiments Category = "condiments"
	CategoryFrozen     Category = "frozen"
	CategoryCanned     Category = "canned"
	CategoryBaking     Category = "baking"
	CategoryOther      Category = "other"
)

var validCategories = map[Category]bool{
	CategoryProduce: true, CategoryDairy: true, CategoryMeat: true,
	CategorySeafood: true, CategoryGrains: true, CategorySnacks: true,
	CategoryBeverages: true, CategoryCondiments: true, CategoryFrozen: true,
	CategoryCanned: true, CategoryBaking: true, CategoryOther: true,
}

// Valid reports whether the category belongs to the closed set.
func (c Category) Valid() bool { return validCategories[c] }

// ParseCategory validates a category string at the boundary.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Message: fmt.Sprintf("invalid category %q", s)}
	}
	return c, nil
}

// Location is the closed set of storage locations.
type Location string

const (
	LocationPantry  Location = "pantry"
	LocationFridge  Location = "fridge"
	LocationFreezer Location = "freezer"
	LocationCounter Location = "counter"
	LocationCabinet Location = "cabinet"
)

var validLocations = map[Location]bool{
	LocationPantry: true, LocationFridge: true, LocationFreezer: true,
	LocationCounter: true, LocationCabinet: true,
}

// Valid reports whether the location belongs to the closed set.
func (l Location) Valid() bool { return validLocations[l] }

// ParseLocation validates a location string at the boundary.
func ParseLocation(s string) (Location, error) {
	l := Location(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", &ValidationError{Field: "location", Message: fmt.Sprintf("invalid location %q", s)}
	}
	return l, nil
}

// ValidationError reports a draft field that fails validation. The
// message is surfaced inline on the field, never retried automatically.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Field names a user-editable draft field for touched-state tracking.
type Field string

const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldBrand       Field = "brand"
	FieldCategory    Field = "category"
	FieldLocation    Field = "location"
	FieldQuantity    Field = "quantity"
	FieldUnit        Field = "unit"
	FieldExpiration  Field = "expiration_date"
	FieldPrice       Field = "price_cents"
	FieldNotes       Field = "notes"
)

// defaultExpirationDays applies before any product has been resolved.
const defaultExpirationDays = 7

// InventoryDraft is the mutable, user-facing record for the current
// add-item session. Every field has a safe default so the draft is
// always submittable, even with zero user interaction beyond scanning.
type InventoryDraft struct {
	ID             string                 `json:"id"`
	Barcode        string                 `json:"barcode,omitempty"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	Brand          string                 `json:"brand,omitempty"`
	ImageURL       string                 `json:"image_url,omitempty"`
	Category       Category               `json:"category"`
	Location       Location               `json:"location"`
	Quantity       float64                `json:"quantity"`
	Unit           Unit                   `json:"unit"`
	ExpirationDate time.Time              `json:"expiration_date"`
	PriceCents     int                    `json:"price_cents"` // price in cents
	Notes          string                 `json:"notes,omitempty"`
	Nutrition      *product.NutritionInfo `json:"nutrition,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// newDraft seeds a draft with system defaults.
func newDraft(id string, now time.Time) InventoryDraft {
	return InventoryDraft{
		ID:             id,
		Name:           product.UnknownProductName,
		Category:       CategoryOther,
		Location:       LocationPantry,
		Quantity:       1,
		Unit:           UnitPieces,
		ExpirationDate: now.AddDate(0, 0, defaultExpirationDays),
		PriceCents:     0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// categoryKeywords maps the external database's free-text category
// vocabulary onto the closed Category set. First match wins, most
// specific entries first.
var categoryKeywords = []struct {
	keyword  string
	category Category
}{
	{"frozen", CategoryFrozen},
	{"canned", CategoryCanned},
	{"dairies", CategoryDairy},
	{"dairy", CategoryDairy},
	{"cheese", CategoryDairy},
	{"yogurt", CategoryDairy},
	{"milk", CategoryDairy},
	{"seafood", CategorySeafood},
	{"fish", CategorySeafood},
	{"meat", CategoryMeat},
	{"poultry", CategoryMeat},
	{"fruit", CategoryProduce},
	{"vegetable", CategoryProduce},
	{"plant-based-food", CategoryProduce},
	{"bread", CategoryGrains},
	{"cereal", CategoryGrains},
	{"pasta", CategoryGrains},
	{"rice", CategoryGrains},
	{"snack", CategorySnacks},
	{"chips", CategorySnacks},
	{"candies", CategorySnacks},
	{"chocolate", CategorySnacks},
	{"beverage", CategoryBeverages},
	{"drink", CategoryBeverages},
	{"juice", CategoryBeverages},
	{"water", CategoryBeverages},
	{"sauce", CategoryCondiments},
	{"condiment", CategoryCondiments},
	{"spice", CategoryCondiments},
	{"oil", CategoryCondiments},
	{"flour", CategoryBaking},
	{"sugar", CategoryBaking},
	{"baking", CategoryBaking},
}

// categoryForTags maps normalized external category tags to a Category.
func categoryForTags(tags []string) Category {
	for _, entry := range categoryKeywords {
		for _, tag := range tags {
			if strings.Contains(tag, entry.keyword) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// locationForCategory picks the storage location a category usually
// lives in.
func locationForCategory(c Category) Location {
	switch c {
	case CategoryFrozen:
		return LocationFreezer
	case CategoryDairy, CategoryMeat, CategorySeafood:
		return LocationFridge
	case CategoryProduce:
		return LocationCounter
	default:
		return LocationPantry
	}
}

// shelfLifeDays is the default expiration horizon per category.
func shelfLifeDays(c Category) int {
	switch c {
	case CategorySeafood:
		return 3
	case CategoryMeat:
		return 5
	case CategoryProduce:
		return 7
	case CategoryDairy:
		return 14
	case CategoryFrozen, CategorySnacks:
		return 90
	case CategoryGrains, CategoryBeverages, CategoryBaking:
		return 180
	case CategoryCondiments, CategoryCanned:
		return 365
	default:
		return defaultExpirationDays
	}
}
