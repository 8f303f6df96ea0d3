package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/streamshort/backend/internal/history"
	"github.com/streamshort/backend/internal/kv"
	"github.com/streamshort/backend/internal/logger"
	"github.com/streamshort/backend/internal/models"
	"github.com/streamshort/backend/internal/preview"
	"github.com/streamshort/backend/internal/testutil"
	"github.com/streamshort/backend/internal/upload"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	e        *echo.Echo
	handlers *Handlers
	mgr      *upload.Manager
	hist     *history.Store
	previews *preview.Registry
	gen      *testutil.StubGenerator
}

func newTestServer(t *testing.T, gen *testutil.StubGenerator) *testServer {
	t.Helper()
	log := logger.Component(logger.Discard(), "test")

	hist, err := history.NewStore(history.NewKVPort(kv.NewMemoryStore(), log))
	require.NoError(t, err)

	reg, err := preview.NewRegistry(filepath.Join(t.TempDir(), "previews"), 0)
	require.NoError(t, err)

	mgr := upload.NewManager(gen, hist, reg, upload.Options{
		ShortLinkBase: "https://str.short",
		FinalizeDelay: 10 * time.Millisecond,
	}, log)

	handlers := NewHandlers(&Dependencies{
		Pipeline:  mgr,
		History:   hist,
		Previews:  reg,
		SpoolDir:  t.TempDir(),
		Version:   "test",
		Generator: "stub",
		Log:       log,
	})

	e := echo.New()
	SetupMiddleware(e, true, log)
	g := e.Group("/api")
	RegisterRoutes(g, handlers, true)
	RegisterWebSocketRoutes(g, handlers)

	return &testServer{e: e, handlers: handlers, mgr: mgr, hist: hist, previews: reg, gen: gen}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func epicClip() models.InsightResult {
	return models.InsightResult{
		Slug:        "ab12cd",
		Title:       "Epic Clip",
		Description: "A great clip.",
		Tags:        []string{"fun", "short"},
	}
}

// multipartBody builds a form with a "file" part carrying contentType.
// An empty fileName leaves the file part out.
func multipartBody(t *testing.T, fileName, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}

	if fileName != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func uploadRequest(t *testing.T, path, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, fileName, contentType, data, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, ct)
	return req
}

// seedVideo stores one record through the pipeline.
func (s *testServer) seedVideo(t *testing.T, name string) *models.VideoRecord {
	t.Helper()
	rec := s.do(uploadRequest(t, "/api/videos", name, "video/mp4", []byte("fake video bytes"), nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	id := s.hist.List()[0].ID
	v, ok := s.hist.Get(id)
	require.True(t, ok)
	return &v
}
