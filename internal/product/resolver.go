package product

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// kJPerKcal converts Open Food Facts energy values given in kilojoules.
const kJPerKcal = 4.184

// Resolver maps a barcode to a product Record. Resolve never fails to
// the caller: a missing product or a broken lookup degrades to the
// minimal record so the user is never blocked from finishing the
// add-item flow.
type Resolver interface {
	Resolve(ctx context.Context, barcode string) *Record
}

// OpenFoodFacts implements the Resolver interface against the Open
// Food Facts product database.
type OpenFoodFacts struct {
	baseURL string
	client  *http.Client
}

// NewOpenFoodFacts creates a new Open Food Facts resolver.
func NewOpenFoodFacts(baseURL string) *OpenFoodFacts {
	if baseURL == "" {
		baseURL = "https://world.openfoodfacts.org"
	}
	return &OpenFoodFacts{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

// offResponse mirrors the relevant slice of the Open Food Facts v2
// product payload. Nutriment values arrive as numbers or strings
// depending on the source, so they stay untyped until normalization.
type offResponse struct {
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

type offProduct struct {
	ProductName     string         `json:"product_name"`
	Brands          string         `json:"brands"`
	ImageURL        string         `json:"image_url"`
	IngredientsText string         `json:"ingredients_text"`
	AllergensTags   []string       `json:"allergens_tags"`
	CategoriesTags  []string       `json:"categories_tags"`
	Nutriments      map[string]any `json:"nutriments"`
}

// Resolve queries the product database by barcode and normalizes the
// response into a Record. On no match or on any network/parse error it
// returns the minimal record; the failure is logged, never thrown.
func (o *OpenFoodFacts) Resolve(ctx context.Context, barcode string) *Record {
	url := fmt.Sprintf("%s/api/v2/product/%s.json", o.baseURL, barcode)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		slog.Warn("Failed to build product lookup request", "barcode", barcode, "error", err)
		return Unresolved(barcode, fmt.Sprintf("Product lookup failed for barcode %s", barcode))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		slog.Warn("Product lookup failed", "barcode", barcode, "error", err)
		return Unresolved(barcode, fmt.Sprintf("Product lookup failed for barcode %s", barcode))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("No product match", "barcode", barcode)
		return Unresolved(barcode, fmt.Sprintf("No product match for barcode %s", barcode))
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("Product lookup error", "barcode", barcode, "status", resp.StatusCode)
		return Unresolved(barcode, fmt.Sprintf("Product lookup failed for barcode %s", barcode))
	}

	var payload offResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Warn("Failed to decode product payload", "barcode", barcode, "error", err)
		return Unresolved(barcode, fmt.Sprintf("Product lookup failed for barcode %s", barcode))
	}

	if payload.Status != 1 {
		slog.Warn("No product match", "barcode", barcode)
		return Unresolved(barcode, fmt.Sprintf("No product match for barcode %s", barcode))
	}

	return normalizeProduct(barcode, payload.Product)
}

// normalizeProduct maps the heterogeneous source schema to the
// canonical Record shape.
func normalizeProduct(barcode string, p offProduct) *Record {
	name := strings.TrimSpace(p.ProductName)
	if name == "" {
		name = UnknownProductName
	}

	record := &Record{
		Barcode:    barcode,
		Name:       name,
		Brand:      strings.TrimSpace(p.Brands),
		ImageURL:   strings.TrimSpace(p.ImageURL),
		Categories: stripLocaleTags(p.CategoriesTags),
		Resolved:   true,
	}

	if len(p.Nutriments) > 0 || p.IngredientsText != "" || len(p.AllergensTags) > 0 {
		record.Nutrition = &NutritionInfo{
			Calories:        energyKcal(p.Nutriments),
			Fat:             nutrimentValue(p.Nutriments, "fat_100g", "fat"),
			Carbs:           nutrimentValue(p.Nutriments, "carbohydrates_100g", "carbohydrates"),
			Protein:         nutrimentValue(p.Nutriments, "proteins_100g", "proteins"),
			IngredientsText: strings.TrimSpace(p.IngredientsText),
			Allergens:       stripLocaleTags(p.AllergensTags),
		}
	}

	return record
}

// energyKcal normalizes energy to kcal: the kcal field wins, otherwise
// the kJ field is converted, otherwise zero.
func energyKcal(nutriments map[string]any) float64 {
	if kcal := nutrimentValue(nutriments, "energy-kcal_100g", "energy-kcal"); kcal != 0 {
		return kcal
	}
	if kj := nutrimentValue(nutriments, "energy_100g", "energy-kj_100g"); kj != 0 {
		return kj / kJPerKcal
	}
	return 0
}

// nutrimentValue applies the fixed priority order for a nutrient:
// primary field, then fallback fields, then zero.
func nutrimentValue(nutriments map[string]any, keys ...string) float64 {
	for _, key := range keys {
		raw, ok := nutriments[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		}
	}
	return 0
}

// stripLocaleTags removes the language-code prefix from each tag in a
// tag set ("en:milk" becomes "milk") and drops empty results.
func stripLocaleTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if idx := strings.Index(tag, ":"); idx >= 0 {
			tag = tag[idx+1:]
		}
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
