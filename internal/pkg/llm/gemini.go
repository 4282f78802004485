package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig contains configuration for the Gemini API.
type GeminiConfig struct {
	APIKey string
	Model  string // e.g., "gemini-2.0-flash"
}

// GeminiClient calls Gemini through the Google Gen AI SDK.
type GeminiClient struct {
	config GeminiConfig
	client *genai.Client
}

// NewGeminiClient creates a Gemini client. An API key is required.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{config: config, client: client}, nil
}

// Name implements Completer.
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Generate implements Completer.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var temperature float32
	result, err := c.client.Models.GenerateContent(
		ctx,
		c.config.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
