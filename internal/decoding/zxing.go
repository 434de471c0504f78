package decoding

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// ZXing implements the Decoder interface with a pure-Go ZXing port.
// It reads the UPC/EAN family, which covers retail packaging.
type ZXing struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXing creates a new ZXing Decoder instance.
func NewZXing() *ZXing {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &ZXing{
		reader: oned.NewMultiFormatUPCEANReader(hints),
		hints:  hints,
	}
}

// DecodeFrame decodes one frame. A frame without a readable symbol
// returns (nil, nil) and decoding continues on the next frame.
func (z *ZXing) DecodeFrame(imageData []byte, contentType string) (*Symbol, error) {
	pngData, err := prepareFrame(imageData, contentType)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decoding frame image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarizing frame: %w", err)
	}

	result, err := z.reader.Decode(bmp, z.hints)
	if err != nil {
		// No symbol, a misread checksum, or garbled bars in this frame
		// are all just "not found here"; the next frame gets a fresh try.
		switch err.(type) {
		case gozxing.NotFoundException, gozxing.ChecksumException, gozxing.FormatException:
			return nil, nil
		}
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	return &Symbol{
		Text:      result.GetText(),
		Format:    result.GetBarcodeFormat().String(),
		DecodedAt: time.Now(),
	}, nil
}

// Close closes the decoder (no resources to release).
func (z *ZXing) Close() error {
	return nil
}
