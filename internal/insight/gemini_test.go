package insight

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/streamshort/backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGemini serves generateContent with a canned model text.
func fakeGemini(t *testing.T, status int, modelText string) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()

	var calls atomic.Int32
	var lastBody atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))

		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
			return
		}

		resp := map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": modelText}},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return srv, &calls, &lastBody
}

func newTestGemini(t *testing.T, baseURL string) *GeminiGenerator {
	t.Helper()
	g, err := NewGeminiGenerator(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: baseURL,
	}, logger.Component(logger.Discard(), "insight"))
	require.NoError(t, err)
	return g
}

func TestGeminiGenerator_Success(t *testing.T) {
	srv, calls, lastBody := fakeGemini(t, http.StatusOK,
		`{"slug":"ab12cd","title":"Epic Clip","description":"A great clip.","tags":["fun","short"]}`)
	g := newTestGemini(t, srv.URL)

	out := g.Generate(context.Background(), "clip.mp4", 1048576)

	assert.False(t, out.Synthetic)
	assert.NoError(t, out.Cause)
	assert.Equal(t, "ab12cd", out.Slug)
	assert.Equal(t, "Epic Clip", out.Title)
	assert.Equal(t, []string{"fun", "short"}, out.Tags)
	assert.EqualValues(t, 1, calls.Load())

	body := lastBody.Load().(string)
	assert.Contains(t, body, `Filename: \"clip.mp4\", Size: 1048576 bytes`)
	assert.Contains(t, body, "application/json")
	assert.Contains(t, body, `"required"`)
}

func TestGeminiGenerator_FallsBack(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
	}{
		{name: "malformed JSON", status: http.StatusOK, text: `{"slug":`},
		{name: "schema violation", status: http.StatusOK, text: `{"slug":"a","title":"t"}`},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls, _ := fakeGemini(t, tt.status, tt.text)
			g := newTestGemini(t, srv.URL)

			out := g.Generate(context.Background(), "clip.mp4", 10)

			assert.True(t, out.Synthetic)
			assert.Error(t, out.Cause)
			assert.Equal(t, "clip", out.Title)
			assert.Equal(t, FallbackDescription, out.Description)
			assert.Equal(t, []string{"video", "upload"}, out.Tags)
			// single attempt, no retry
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestGeminiGenerator_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := newTestGemini(t, url)
	out := g.Generate(context.Background(), "holiday.webm", 1)

	assert.True(t, out.Synthetic)
	assert.Equal(t, "holiday", out.Title)
}

func TestNewGeminiGenerator_Validation(t *testing.T) {
	log := logger.Component(logger.Discard(), "insight")

	_, err := NewGeminiGenerator(context.Background(), GeminiConfig{Model: "m"}, log)
	assert.Error(t, err)

	_, err = NewGeminiGenerator(context.Background(), GeminiConfig{APIKey: "k"}, log)
	assert.Error(t, err)
}
