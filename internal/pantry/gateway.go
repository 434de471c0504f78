package pantry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrInventoryUnreachable marks a submission that never reached the
// inventory API. The draft is left untouched so the user can retry
// without re-entering data.
var ErrInventoryUnreachable = errors.New("inventory API unreachable")

// PersistedItem is the inventory API's stored representation of a
// submitted draft.
type PersistedItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category"`
	Location       string    `json:"location"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit"`
	ExpirationDate string    `json:"expirationDate"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Gateway validates and persists a finalized draft.
type Gateway interface {
	Submit(ctx context.Context, draft InventoryDraft) (*PersistedItem, error)
}

// InventoryAPI implements the Gateway interface against the external
// inventory REST endpoint.
type InventoryAPI struct {
	baseURL string
	client  *http.Client
}

// NewInventoryAPI creates a new inventory API gateway.
func NewInventoryAPI(baseURL string) *InventoryAPI {
	return &InventoryAPI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// submissionPayload is the outbound wire shape.
type submissionPayload struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Location       string  `json:"location"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	ExpirationDate string  `json:"expirationDate"`
	Notes          string  `json:"notes"`
}

// ValidateDraft checks the draft locally before any write is issued.
func ValidateDraft(draft InventoryDraft) error {
	if strings.TrimSpace(draft.Name) == "" {
		return &ValidationError{Field: "name", Message: "name must not be empty"}
	}
	if draft.Quantity < 0 {
		return &ValidationError{Field: "quantity", Message: "quantity must be >= 0"}
	}
	if draft.PriceCents < 0 {
		return &ValidationError{Field: "price_cents", Message: "price must be >= 0"}
	}
	if !draft.Unit.Valid() {
		return &ValidationError{Field: "unit", Message: fmt.Sprintf("invalid unit %q", draft.Unit)}
	}
	if !draft.Category.Valid() {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("invalid category %q", draft.Category)}
	}
	if !draft.Location.Valid() {
		return &ValidationError{Field: "location", Message: fmt.Sprintf("invalid location %q", draft.Location)}
	}
	return nil
}

// Submit validates the draft and posts it to the inventory API. A
// server-side rejection surfaces the server's message verbatim as a
// ValidationError; a network failure wraps ErrInventoryUnreachable.
func (a *InventoryAPI) Submit(ctx context.Context, draft InventoryDraft) (*PersistedItem, error) {
	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}

	payload := submissionPayload{
		Name:           draft.Name,
		Description:    draft.Description,
		Category:       string(draft.Category),
		Location:       string(draft.Location),
		Quantity:       draft.Quantity,
		Unit:           string(draft.Unit),
		ExpirationDate: draft.ExpirationDate.Format("2006-01-02"),
		Notes:          draft.Notes,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling submission: %w", err)
	}

	url := fmt.Sprintf("%s/api/inventory", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventoryUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &ValidationError{Message: serverErrorMessage(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inventory API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var item PersistedItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decoding persisted item: %w", err)
	}
	return &item, nil
}

// serverErrorMessage extracts the server's rejection message verbatim.
func serverErrorMessage(resp *http.Response) string {
	respBody, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	text := strings.TrimSpace(string(respBody))
	if text == "" {
		return fmt.Sprintf("inventory API rejected the item (status %d)", resp.StatusCode)
	}
	return text
}
