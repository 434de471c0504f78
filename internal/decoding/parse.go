package decoding

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseSymbolJSON parses the JSON response from a vision model.
// Returns (nil, nil) when the model reports no barcode or the digits
// fail check-digit validation; a hallucinated code must not enter the
// pipeline.
func parseSymbolJSON(text string) (*Symbol, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var raw struct {
		Text   string `json:"text"`
		Format string `json:"format"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	digits := NormalizeDigits(raw.Text)
	if digits == "" {
		// Model saw no barcode in this frame
		return nil, nil
	}

	if !ValidCheckDigit(digits) {
		return nil, nil
	}

	format := strings.ToUpper(strings.TrimSpace(raw.Format))
	if format == "" {
		format = FormatForLength(len(digits))
	}

	return &Symbol{
		Text:      digits,
		Format:    format,
		DecodedAt: time.Now(),
	}, nil
}

// NormalizeDigits strips everything but digits from a barcode string.
// Vision models and humans alike add spaces or hyphens between digit
// groups.
func NormalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCheckDigit validates the modulo-10 check digit of EAN-8, UPC-A
// and EAN-13 codes. Other lengths are rejected.
func ValidCheckDigit(digits string) bool {
	switch len(digits) {
	case 8, 12, 13:
	default:
		return false
	}

	sum := 0
	// Weights alternate 3,1,3,... from the digit next to the check digit.
	for i := len(digits) - 2; i >= 0; i-- {
		d := int(digits[i] - '0')
		if (len(digits)-2-i)%2 == 0 {
			sum += d * 3
		} else {
			sum += d
		}
	}
	check := (10 - sum%10) % 10
	return check == int(digits[len(digits)-1]-'0')
}

// FormatForLength infers the symbology from the digit count.
func FormatForLength(n int) string {
	switch n {
	case 8:
		return "EAN_8"
	case 12:
		return "UPC_A"
	case 13:
		return "EAN_13"
	default:
		return "UNKNOWN"
	}
}
