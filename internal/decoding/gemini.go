package decoding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// barcodeScanPrompt is the shared prompt used by all vision providers
// for reading barcode digits off difficult photos.
const barcodeScanPrompt = `You are analyzing a photo of a product package. Look for a retail barcode (UPC-A, EAN-13 or EAN-8) and read the digits printed beneath the bars.

Return ONLY valid JSON in this exact format:
{
  "text": "0123456789012",
  "format": "EAN_13"
}

Important:
- "text" must contain only the digits, no spaces or hyphens
- "format" must be one of "UPC_A", "EAN_13", "EAN_8"
- If no barcode is visible or the digits are unreadable, return {"text": "", "format": ""}
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// Gemini implements the Decoder interface using Google Gemini vision.
// It exists for the photos the ZXing reader gives up on: crumpled
// labels, glare, motion blur.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Decoder instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// DecodeFrame reads barcode digits from a frame via Gemini vision.
func (g *Gemini) DecodeFrame(imageData []byte, contentType string) (*Symbol, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pngData, err := prepareFrame(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix, and prepareFrame
	// always hands back PNG.
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(barcodeScanPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	symbol, err := parseSymbolJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing symbol data: %w", err)
	}

	return symbol, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
