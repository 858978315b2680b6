// Package ai provides the generative text and vision provider used for
// Q&A, image analysis and search-result summarization.
package ai

import "context"

// DefaultImagePrompt is used when a photo arrives without a caption
const DefaultImagePrompt = "Describe this image in detail"

// Provider is the interface for generative AI backends. Implementations do
// not retry and honor context cancellation; callers apply timeouts via ctx.
type Provider interface {
	// Name returns the provider name
	Name() string

	// GenerateText produces a completion for a text prompt
	GenerateText(ctx context.Context, prompt string) (string, error)

	// AnalyzeImage describes the given image bytes, guided by prompt
	AnalyzeImage(ctx context.Context, data []byte, prompt string) (string, error)
}
