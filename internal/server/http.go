package server

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultBodySizeLimit   = "1M"
	defaultMetricsEndpoint = "/metrics"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	BodySizeLimit   string        // Max request body size, echo notation (default: 1M)
	CORSOrigins     []string      // Allowed CORS origins; empty disables CORS headers
	MetricsEnabled  bool          // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string        // HTTP path for metrics endpoint (default: /metrics)
	RequestTimeout  time.Duration // Deadline applied to every request context; zero disables it
}

// New creates a new HTTP server
func New(deps Dependencies, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	handler := NewHandler(deps)

	// Global middleware stack (order matters)
	e.Use(requestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())

	bodySizeLimit := defaultBodySizeLimit
	if cfg.BodySizeLimit != "" {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodySizeLimit))

	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			ExposeHeaders: []string{echo.HeaderXRequestID, headerETag},
		}))
	}
	e.Use(requestTimeout(cfg.RequestTimeout))

	// Public routes
	e.GET("/", handler.Index)
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath(cfg.MetricsEndpoint), echo.WrapHandler(promhttp.Handler()))
	}

	// API routes
	e.GET("/getCommonApps", handler.CommonApps)
	e.GET("/getAppDetails", handler.AppDetails)
	e.GET("/getSteamId", handler.SteamID)
	e.GET("/getCategories", handler.Categories)
	e.GET("/getProfiles", handler.Profiles)

	// Legacy names kept for existing clients
	e.GET("/getSteamAppDetails", handler.AppDetails)
	e.GET("/getSteamID", handler.SteamID)
	e.GET("/getSteamCategories", handler.Categories)

	// Raw pass-through to Steam
	e.GET("/steamAPI/:iface/:command/:version", handler.SteamAPI)
	e.GET("/storeAPI/:command", handler.StoreAPI)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// metricsPath normalizes the configured metrics path. Paths that would
// shadow an API route fall back to the default.
func metricsPath(configured string) string {
	if configured == "" {
		return defaultMetricsEndpoint
	}
	// Normalize path to prevent traversal attacks
	p := path.Clean("/" + configured)
	if isAPIPath(p) {
		return defaultMetricsEndpoint
	}
	return p
}

func isAPIPath(p string) bool {
	switch p {
	case "/", "/health",
		"/getCommonApps", "/getAppDetails", "/getSteamId", "/getCategories", "/getProfiles",
		"/getSteamAppDetails", "/getSteamID", "/getSteamCategories":
		return true
	}
	return strings.HasPrefix(p, "/steamAPI/") || strings.HasPrefix(p, "/storeAPI/")
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
