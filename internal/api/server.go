package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	apimw "github.com/livereview/reviewbridge/internal/api/middleware"
	"github.com/livereview/reviewbridge/internal/config"
	"github.com/livereview/reviewbridge/internal/ratelimit"
)

const (
	healthPath      = "/health"
	shutdownTimeout = 10 * time.Second
)

// Server is one of the two HTTP services.
type Server struct {
	echo      *echo.Echo
	port      int
	service   string
	startedAt time.Time
}

// newServer builds an echo instance with the middleware chain shared by both
// services. A nil limiter disables rate limiting.
func newServer(service string, port int, httpCfg config.HTTPConfig, limiter *ratelimit.Limiter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.IPExtractor = ipExtractor(httpCfg.TrustedProxies)

	e.Use(apimw.RequestContext(service))
	e.Use(middleware.Recover())
	if httpCfg.MaxBodySize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", httpCfg.MaxBodySize)))
	}
	if limiter != nil {
		e.Use(apimw.RateLimit(limiter, healthPath))
	}

	return &Server{
		echo:      e,
		port:      port,
		service:   service,
		startedAt: time.Now(),
	}
}

// ipExtractor keys clients by the TCP peer address. X-Forwarded-For is only
// read when the peer falls inside one of the trusted proxy ranges.
func ipExtractor(trustedProxies []string) echo.IPExtractor {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			log.Warn().Str("cidr", cidr).Err(err).Msg("Ignoring invalid trusted proxy range")
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("service", s.service).Int("port", s.port).Msg("Server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("%s server: %w", s.service, err)
	case sig := <-quit:
		log.Info().Str("service", s.service).Str("signal", sig.String()).Msg("Shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
