package product

// UnknownProductName is the sentinel name for a record the external
// database could not resolve.
const UnknownProductName = "Unknown Product"

// NutritionInfo holds normalized nutrition facts on a per-100g/100ml
// basis. Values are kcal for energy and grams for the macros.
type NutritionInfo struct {
	Calories        float64  `json:"calories"`
	Fat             float64  `json:"fat"`
	Carbs           float64  `json:"carbs"`
	Protein         float64  `json:"protein"`
	IngredientsText string   `json:"ingredients_text,omitempty"`
	Allergens       []string `json:"allergens,omitempty"`
}

// Record is the canonical resolved-or-unresolved product. It is always
// constructible: when the external lookup fails it degrades to a
// minimal record carrying only the barcode and a descriptive note.
type Record struct {
	Barcode    string         `json:"barcode"`
	Name       string         `json:"name"`
	Brand      string         `json:"brand,omitempty"`
	ImageURL   string         `json:"image_url,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Nutrition  *NutritionInfo `json:"nutrition,omitempty"`
	Resolved   bool           `json:"resolved"`
	Notes      string         `json:"notes,omitempty"`
}

// Unresolved builds the minimal fallback record for a barcode.
func Unresolved(barcode, notes string) *Record {
	return &Record{
		Barcode:  barcode,
		Name:     UnknownProductName,
		Resolved: false,
		Notes:    notes,
	}
}
