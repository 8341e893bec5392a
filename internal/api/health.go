package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	apimw "github.com/livereview/reviewbridge/internal/api/middleware"
	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

const healthCheckTimeout = 3 * time.Second

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Dependency is a downstream component probed by the health endpoint.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// DependencyStatus is the probe result for one dependency.
type DependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the health endpoint payload.
type HealthReport struct {
	Status        string                      `json:"status"`
	UptimeSeconds int64                       `json:"uptimeSeconds"`
	Dependencies  map[string]DependencyStatus `json:"dependencies"`
}

func (s *Server) handleHealth(deps []Dependency) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := HealthReport{
			Status:        StatusOK,
			UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
			Dependencies:  checkDependencies(c.Request().Context(), deps),
		}
		for _, dep := range report.Dependencies {
			if dep.Status != StatusOK {
				report.Status = StatusDegraded
			}
		}

		if report.Status == StatusOK {
			return respondData(c, http.StatusOK, report)
		}
		return c.JSON(http.StatusServiceUnavailable, reviewmodel.Envelope{
			Success: false,
			Data:    report,
			Error: &reviewmodel.ErrorBody{
				Code:    string(apperrors.KindExternal),
				Message: "one or more dependencies are unavailable",
			},
			RequestID: apimw.RequestID(c),
		})
	}
}

// checkDependencies probes every dependency concurrently, each within
// healthCheckTimeout.
func checkDependencies(ctx context.Context, deps []Dependency) map[string]DependencyStatus {
	logger := logging.FromContext(ctx)
	results := make(map[string]DependencyStatus, len(deps))

	var mu sync.Mutex
	var g errgroup.Group
	for _, dep := range deps {
		dep := dep
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()

			status := DependencyStatus{Status: StatusOK}
			if err := dep.Check(checkCtx); err != nil {
				logger.Warn().Err(err).Str("dependency", dep.Name).Msg("Health check failed")
				status = DependencyStatus{Status: StatusDown, Error: logging.Truncate(err.Error(), 200)}
			}

			mu.Lock()
			results[dep.Name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
