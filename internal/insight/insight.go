// Package insight produces the title, description, tags and slug for an upload.
package insight

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/streamshort/backend/internal/models"
)

const (
	// FallbackDescription is used when no generated description is available.
	FallbackDescription = "No description generated."

	slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	slugLength   = 6
)

// FallbackTags are the tags of every synthetic result.
var FallbackTags = []string{"video", "upload"}

// Insights is the outcome of a generation. It is always usable: when the
// service could not produce a result, Synthetic is set and Cause says why.
type Insights struct {
	models.InsightResult
	Synthetic bool
	Cause     error
}

// Generator produces insights for a file. Implementations never fail.
type Generator interface {
	Generate(ctx context.Context, filename string, size int64) Insights
}

// Fallback builds the synthetic result for filename.
func Fallback(filename string) models.InsightResult {
	return models.InsightResult{
		Slug:        RandomToken(slugLength),
		Title:       TitleFromFilename(filename),
		Description: FallbackDescription,
		Tags:        append([]string(nil), FallbackTags...),
	}
}

// TitleFromFilename strips the final extension. Names that would become
// empty (".mp4") are returned unchanged.
func TitleFromFilename(filename string) string {
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		return filename
	}
	return title
}

// RandomToken returns n random characters from [a-z0-9].
func RandomToken(n int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(slugAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("insight: random source failed: %v", err))
		}
		sb.WriteByte(slugAlphabet[idx.Int64()])
	}
	return sb.String()
}

// wireResult mirrors the response schema. Pointers detect missing keys.
type wireResult struct {
	Slug        *string   `json:"slug"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

// ParseResponse decodes a model response that must match the declared schema.
func ParseResponse(text string) (models.InsightResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.InsightResult{}, errors.New("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	var w wireResult
	if err := dec.Decode(&w); err != nil {
		return models.InsightResult{}, fmt.Errorf("decoding response: %w", err)
	}
	if dec.More() {
		return models.InsightResult{}, errors.New("trailing data after response object")
	}

	switch {
	case w.Slug == nil:
		return models.InsightResult{}, errors.New("response missing slug")
	case w.Title == nil:
		return models.InsightResult{}, errors.New("response missing title")
	case w.Description == nil:
		return models.InsightResult{}, errors.New("response missing description")
	case w.Tags == nil:
		return models.InsightResult{}, errors.New("response missing tags")
	case strings.TrimSpace(*w.Slug) == "":
		return models.InsightResult{}, errors.New("response has empty slug")
	}

	return models.InsightResult{
		Slug:        strings.TrimSpace(*w.Slug),
		Title:       *w.Title,
		Description: *w.Description,
		Tags:        *w.Tags,
	}, nil
}

// FallbackGenerator always returns the synthetic result.
type FallbackGenerator struct{}

func (FallbackGenerator) Generate(_ context.Context, filename string, _ int64) Insights {
	return Insights{
		InsightResult: Fallback(filename),
		Synthetic:     true,
		Cause:         errors.New("no generation service configured"),
	}
}
