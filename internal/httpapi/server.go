// Package httpapi is the HTTP surface: the front page, cookie upload and the
// download endpoint, served by echo.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/service"
)

// Jobs runs download jobs.
type Jobs interface {
	Run(ctx context.Context, req domain.JobRequest) (*service.Delivery, error)
	Probe(ctx context.Context, req domain.JobRequest) (*domain.ExtractionResult, error)
}

// CookieSink persists an uploaded cookie jar.
type CookieSink interface {
	Store(r io.Reader) error
}

// Availability reports whether an external tool can be run.
type Availability interface {
	Available() bool
}

// Config holds the HTTP-level settings.
type Config struct {
	RateLimit      float64 // requests per second per client IP; 0 disables
	RateBurst      int
	UploadMaxBytes int64
	FrontendDir    string
}

// Dependencies are the collaborators behind the routes.
type Dependencies struct {
	Jobs       Jobs
	Cookies    CookieSink
	Engine     Availability
	Transcoder Availability
}

// Server wraps the echo instance.
type Server struct {
	echo   *echo.Echo
	cfg    Config
	deps   Dependencies
	logger zerolog.Logger
}

// New builds the server and registers all routes.
func New(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(s.requestLogger())

	limited := []echo.MiddlewareFunc{}
	if cfg.RateLimit > 0 {
		limited = append(limited, s.rateLimiter())
	}

	e.GET("/", s.index)
	e.GET("/healthz", s.health)
	e.POST("/download", s.download, limited...)

	uploadLimit := cfg.UploadMaxBytes
	if uploadLimit <= 0 {
		uploadLimit = 1 << 20
	}
	e.POST("/upload-cookies", s.uploadCookies,
		append(limited, echomw.BodyLimit(fmt.Sprintf("%dB", uploadLimit)))...)

	return s
}

// ServeHTTP lets the server be used as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := s.logger.Info()
			if v.Status >= 500 {
				ev = s.logger.Error()
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.RateLimit),
		Burst:     s.cfg.RateBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: rateLimitError,
		DenyHandler:  rateLimitDeny,
	})
}

// rateLimitError answers when the client cannot be keyed. 403 stays reserved
// for upstream verification challenges.
func rateLimitError(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "Unable to identify client"})
}

func rateLimitDeny(c echo.Context, identifier string, err error) error {
	return c.JSON(http.StatusTooManyRequests, errorBody{Error: "Too many requests, slow down"})
}
