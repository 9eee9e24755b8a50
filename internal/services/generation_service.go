package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"studyforge/internal/schema"
)

const affirmationPrompt = "Generate a short, powerful, and encouraging affirmation for a student focused on learning and personal growth. Make it a single sentence."

// Generator turns a prompt into a value conforming to a response schema
type Generator interface {
	Generate(ctx context.Context, prompt string, node *schema.Node) (any, error)
	Affirmation(ctx context.Context) (string, error)
}

// contentGenerator is the part of *genai.Models the gateway calls
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator is the Generator backed by the Gemini API.
// Every call is a single attempt: no retry, no cache.
type GeminiGenerator struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiGenerator creates a Gemini client for the given key and model
func NewGeminiGenerator(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Printf("✅ Gemini generator ready (model: %s)", model)
	return newGeminiGenerator(client.Models, model, timeout), nil
}

func newGeminiGenerator(models contentGenerator, model string, timeout time.Duration) *GeminiGenerator {
	return &GeminiGenerator{
		models:  models,
		model:   model,
		timeout: timeout,
	}
}

// Generate sends prompt with node as the response schema and returns the
// parsed, schema-conforming result
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, node *schema.Node) (any, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyInput
	}
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   node.ToGenAI(),
	})
	if err != nil {
		GetMetrics().RecordGenerationError("remote")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	result, err := node.Parse(resp.Text())
	if err != nil {
		if errors.Is(err, schema.ErrSchemaViolation) {
			GetMetrics().RecordGenerationError("schema")
			return nil, err
		}
		GetMetrics().RecordGenerationError("malformed")
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	return result, nil
}

// Affirmation asks for one short free-text sentence
func (g *GeminiGenerator) Affirmation(ctx context.Context) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(affirmationPrompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.9),
		MaxOutputTokens: 50,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](25),
		},
	})
	if err != nil {
		GetMetrics().RecordGenerationError("remote")
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	text := strings.TrimSpace(strings.ReplaceAll(resp.Text(), `"`, ""))
	if text == "" {
		return "", fmt.Errorf("%w: empty affirmation", ErrGenerationFailed)
	}
	return text, nil
}

func (g *GeminiGenerator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}
