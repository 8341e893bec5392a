package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/config"
	"github.com/livereview/reviewbridge/internal/ratelimit"
	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

// AnalysisService is the service name used in logs.
const AnalysisService = "analysis"

// AnalyzePath accepts analysis requests from the gateway.
const AnalyzePath = "/api/v1/analyze"

// Analyzer turns a diff into review findings.
type Analyzer interface {
	Analyze(ctx context.Context, req reviewmodel.AnalysisRequest) (reviewmodel.AnalysisResult, error)
}

// NewAnalysisServer builds the analysis service.
func NewAnalysisServer(cfg *config.Config, analyzer Analyzer, limiter *ratelimit.Limiter, deps ...Dependency) *Server {
	s := newServer(AnalysisService, cfg.Analysis.Port, cfg.HTTP, limiter)
	s.echo.POST(AnalyzePath, s.handleAnalyze(analyzer))
	s.echo.GET(healthPath, s.handleHealth(deps))
	return s
}

func (s *Server) handleAnalyze(analyzer Analyzer) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := readBody(c)
		if err != nil {
			return err
		}

		req, err := decodeAnalysisRequest(body)
		if err != nil {
			return err
		}

		result, err := analyzer.Analyze(c.Request().Context(), req)
		if err != nil {
			return err
		}
		return respondData(c, http.StatusOK, result)
	}
}

func decodeAnalysisRequest(body []byte) (reviewmodel.AnalysisRequest, error) {
	var req reviewmodel.AnalysisRequest
	if len(bytes.TrimSpace(body)) == 0 {
		return req, apperrors.Validation("request body is required",
			apperrors.FieldError{Field: "body", Message: "must be a JSON object"})
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return req, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return req, apperrors.Validation("malformed JSON body",
			apperrors.FieldError{Field: "body", Message: "unexpected data after JSON object"})
	}
	return req, nil
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return apperrors.Validation("invalid field type",
			apperrors.FieldError{Field: field, Message: fmt.Sprintf("must be of type %s", typeErr.Type)})
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.Validation("malformed JSON body",
			apperrors.FieldError{Field: "body", Message: "must be valid JSON"})
	default:
		return apperrors.Validation("malformed JSON body",
			apperrors.FieldError{Field: "body", Message: err.Error()})
	}
}
