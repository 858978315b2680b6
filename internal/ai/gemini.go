package ai

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini provider
type GeminiConfig struct {
	APIKey      string `json:"api_key"`
	TextModel   string `json:"text_model"`
	VisionModel string `json:"vision_model"`
}

// DefaultGeminiConfig returns the default model selection
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		TextModel:   "gemini-pro",
		VisionModel: "gemini-pro-vision",
	}
}

// GeminiProvider implements Provider against the Google Gemini API
type GeminiProvider struct {
	client      *genai.Client
	textModel   string
	visionModel string
}

// NewGeminiProvider creates a Gemini provider from config
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultGeminiConfig().TextModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultGeminiConfig().VisionModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("gemini:%s", p.textModel)
}

// GenerateText produces a completion for a text prompt
func (p *GeminiProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := p.client.Models.GenerateContent(ctx, p.textModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Gemini text generation failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("Gemini returned an empty response")
	}

	log.Printf("[Gemini] Generated response (%d chars)", len(text))
	return text, nil
}

// AnalyzeImage describes the given image bytes.
// Telegram photos are always JPEG.
func (p *GeminiProvider) AnalyzeImage(ctx context.Context, data []byte, prompt string) (string, error) {
	if prompt == "" {
		prompt = DefaultImagePrompt
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, "image/jpeg"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := p.client.Models.GenerateContent(ctx, p.visionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Gemini image analysis failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("Gemini returned an empty response")
	}

	log.Printf("[Gemini] Analyzed image (%d bytes in, %d chars out)", len(data), len(text))
	return text, nil
}
