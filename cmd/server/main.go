package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/api"
	"github.com/streamshort/backend/internal/config"
	"github.com/streamshort/backend/internal/history"
	"github.com/streamshort/backend/internal/insight"
	"github.com/streamshort/backend/internal/kv"
	"github.com/streamshort/backend/internal/logger"
	"github.com/streamshort/backend/internal/preview"
	"github.com/streamshort/backend/internal/upload"
	"github.com/streamshort/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("Failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, configPath, log); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

// resolveConfigPath uses STREAMSHORT_CONFIG, else streamshort.yaml next to the executable.
func resolveConfigPath() (string, error) {
	if p := os.Getenv("STREAMSHORT_CONFIG"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), "streamshort.yaml"), nil
}

func run(cfg *config.AppConfig, configPath string, log *logrus.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// leftover spool files belong to uploads of an earlier process
	spoolDir := cfg.SpoolDirectory()
	if err := os.RemoveAll(spoolDir); err != nil {
		return fmt.Errorf("clearing spool directory: %w", err)
	}
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return fmt.Errorf("creating spool directory: %w", err)
	}

	// History storage
	store, err := kv.Open(cfg.Storage.Backend, cfg.Storage.DataDirectory, cfg.Storage.DuckDBFile)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()

	hist, err := history.NewStore(history.NewKVPort(store, logger.Component(log, "history")))
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	previews, err := preview.NewRegistry(cfg.Storage.PreviewDirectory, cfg.Upload.MaxPreviewReferences)
	if err != nil {
		return fmt.Errorf("initializing previews: %w", err)
	}
	defer previews.ReleaseAll()

	// Insight generator
	generator, generatorName := newGenerator(cfg, log)

	uploadMgr := upload.NewManager(generator, hist, previews, upload.Options{
		ShortLinkBase: cfg.Insight.ShortLinkBase,
		FinalizeDelay: cfg.FinalizeDelay(),
	}, logger.Component(log, "upload"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background job cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Upload.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				uploadMgr.CleanupOldJobs(time.Duration(cfg.Upload.JobRetentionMinutes) * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	embeddedMode := web.HasEmbeddedFiles()
	e := newEcho(cfg, log, embeddedMode)

	handlers := api.NewHandlers(&api.Dependencies{
		Pipeline:  uploadMgr,
		History:   hist,
		Previews:  previews,
		SpoolDir:  spoolDir,
		Version:   Version,
		Generator: generatorName,
		Log:       logger.Component(log, "api"),
	})

	// API Routes
	apiGroup := e.Group("/api")
	api.RegisterRoutes(apiGroup, handlers, cfg.Upload.AllowDeletion)
	api.RegisterWebSocketRoutes(apiGroup, handlers)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.WithError(err).Warn("Failed to register static routes")
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, generatorName, hist.Len())

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newGenerator returns the Gemini generator when an API key is configured,
// else a generator that always produces fallback insights.
func newGenerator(cfg *config.AppConfig, log *logrus.Logger) (insight.Generator, string) {
	if cfg.Insight.APIKey == "" {
		log.Warn("No Gemini API key configured, every upload gets fallback metadata")
		return insight.FallbackGenerator{}, "fallback"
	}

	gen, err := insight.NewGeminiGenerator(context.Background(), insight.GeminiConfig{
		APIKey:  cfg.Insight.APIKey,
		Model:   cfg.Insight.Model,
		BaseURL: cfg.Insight.BaseURL,
	}, logger.Component(log, "insight"))
	if err != nil {
		log.WithError(err).Warn("Gemini client unavailable, every upload gets fallback metadata")
		return insight.FallbackGenerator{}, "fallback"
	}
	return gen, "gemini"
}

func newEcho(cfg *config.AppConfig, log *logrus.Logger, embeddedMode bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, strings.EqualFold(cfg.Logging.Level, "debug"), logger.Component(log, "http"))

	access := logger.Component(log, "access")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Server.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/stream") || path == "/api/health"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := access.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
				"remote":  v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("Request")
				return nil
			}
			entry.Info("Request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	// Compression middleware
	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Server.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return c.Request().Header.Get("Accept") == "text/event-stream" ||
					strings.HasPrefix(path, "/api/ws/") ||
					strings.HasPrefix(path, "/api/previews/")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		if !embeddedMode {
			// Development mode - also allow the local dev server
			origins = append(origins, "http://localhost:5173", "http://127.0.0.1:5173")
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	return e
}

func printBanner(cfg *config.AppConfig, configPath, generator string, videos int) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           StreamShort Server                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Generator:  %-45s║\n", generator)
	fmt.Printf("║  Storage:    %-45s║\n", cfg.Storage.Backend)
	fmt.Printf("║  History:    %-45s║\n", fmt.Sprintf("%d videos", videos))
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
