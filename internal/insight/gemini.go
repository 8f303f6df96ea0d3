package insight

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/models"
	"google.golang.org/genai"
)

const promptTemplate = `Analyze this video upload: Filename: "%s", Size: %d bytes. Generate metadata for a short-link sharing service.`

// responseSchema is the output shape the model is asked to follow.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"slug": {
			Type:        genai.TypeString,
			Description: "A unique, creative 6-8 character alphanumeric slug for the short URL.",
		},
		"title": {
			Type:        genai.TypeString,
			Description: "A catchy, click-worthy title based on the filename.",
		},
		"description": {
			Type:        genai.TypeString,
			Description: "A short professional description for the video.",
		},
		"tags": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "3-5 relevant hashtags.",
		},
	},
	Required: []string{"slug", "title", "description", "tags"},
}

// GeminiConfig configures GeminiGenerator.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional endpoint override
}

// GeminiGenerator asks a Gemini model for insights. Each call is one request:
// no retries and no timeout beyond the caller's context.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	log    *logrus.Entry
}

// NewGeminiGenerator creates a client for the Gemini API.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, log *logrus.Entry) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini: model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &GeminiGenerator{client: client, model: cfg.Model, log: log}, nil
}

// Generate calls the model and falls back to a synthetic result on any failure.
func (g *GeminiGenerator) Generate(ctx context.Context, filename string, size int64) Insights {
	result, err := g.request(ctx, filename, size)
	if err != nil {
		g.log.WithError(err).WithField("file", filename).Warn("Gemini request failed, using fallback")
		return Insights{InsightResult: Fallback(filename), Synthetic: true, Cause: err}
	}
	return Insights{InsightResult: result}
}

func (g *GeminiGenerator) request(ctx context.Context, filename string, size int64) (models.InsightResult, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(fmt.Sprintf(promptTemplate, filename, size)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		})
	if err != nil {
		return models.InsightResult{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil {
		return models.InsightResult{}, errors.New("gemini: empty response")
	}

	return ParseResponse(resp.Text())
}
