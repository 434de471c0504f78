package decoding

import "time"

// Symbol is one decoded barcode. Immutable; produced by a Decoder and
// consumed exactly once by the resolver side of the pipeline.
type Symbol struct {
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	DecodedAt time.Time `json:"decoded_at"`
}

// Decoder defines the interface for per-frame barcode decoding.
//
// DecodeFrame returns (nil, nil) when the frame contains no readable
// symbol. Missing a symbol is the overwhelmingly common case during a
// live scan and is not an error; only a broken frame or a failed
// backend call is.
type Decoder interface {
	DecodeFrame(imageData []byte, contentType string) (*Symbol, error)
	// Close closes the decoder and releases resources
	Close() error
}
