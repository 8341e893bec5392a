package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/config"
	githubin "github.com/livereview/reviewbridge/internal/provider_input/github"
	"github.com/livereview/reviewbridge/internal/ratelimit"
	"github.com/livereview/reviewbridge/internal/review"
)

// GatewayService is the service name used in logs.
const GatewayService = "gateway"

// WebhookPath receives GitHub deliveries.
const WebhookPath = "/webhook/github"

// EventHandler processes one verified-or-not webhook delivery.
type EventHandler interface {
	Handle(ctx context.Context, event *githubin.PullRequestEvent) (review.Outcome, error)
}

// NewGatewayServer builds the intake gateway.
func NewGatewayServer(cfg *config.Config, handler EventHandler, limiter *ratelimit.Limiter, deps ...Dependency) *Server {
	s := newServer(GatewayService, cfg.Gateway.Port, cfg.HTTP, limiter)
	s.echo.POST(WebhookPath, s.handleGitHubWebhook(handler))
	s.echo.GET(healthPath, s.handleHealth(deps))
	return s
}

func (s *Server) handleGitHubWebhook(handler EventHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := readBody(c)
		if err != nil {
			return err
		}

		h := c.Request().Header
		event := githubin.NewPullRequestEvent(
			h.Get(githubin.HeaderEvent),
			h.Get(githubin.HeaderDelivery),
			h.Get(githubin.HeaderSignature),
			body,
		)

		outcome, err := handler.Handle(c.Request().Context(), event)
		if err != nil {
			return err
		}
		return respondData(c, http.StatusOK, outcome)
	}
}

// readBody reads the raw request body. Size violations from the body limit
// middleware surface unchanged.
func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, apperrors.Validation("failed to read request body", apperrors.FieldError{Field: "body", Message: err.Error()})
	}
	return body, nil
}
