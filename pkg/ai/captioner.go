package ai

import "context"

// ImageCaptioner produces a short description of a raster image.
type ImageCaptioner interface {
	CaptionImage(ctx context.Context, image []byte, mimeType, prompt string, maxTokens int) (string, error)
}

// GeminiCaptioner wraps GeminiClient with a fixed vision model.
type GeminiCaptioner struct {
	client *GeminiClient
	model  string
}

// NewGeminiCaptioner builds a Gemini-based ImageCaptioner.
func NewGeminiCaptioner(client *GeminiClient, model string) *GeminiCaptioner {
	return &GeminiCaptioner{client: client, model: model}
}

// CaptionImage implements ImageCaptioner using Gemini.
func (c *GeminiCaptioner) CaptionImage(ctx context.Context, image []byte, mimeType, prompt string, maxTokens int) (string, error) {
	return c.client.CaptionImage(ctx, c.model, image, mimeType, prompt, maxTokens)
}
