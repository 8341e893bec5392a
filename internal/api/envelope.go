package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	apimw "github.com/livereview/reviewbridge/internal/api/middleware"
	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

func respondData(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, reviewmodel.Envelope{
		Success:   true,
		Data:      data,
		RequestID: apimw.RequestID(c),
	})
}

// errorHandler renders every error returned by a handler or middleware as an
// error envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	appErr, status := classify(err)
	logger := logging.FromContext(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("code", string(appErr.Kind)).Msg("Request failed")
	} else {
		logger.Warn().Err(err).Str("code", string(appErr.Kind)).Msg("Request rejected")
	}

	env := reviewmodel.Envelope{
		Success: false,
		Error: &reviewmodel.ErrorBody{
			Code:    string(appErr.Kind),
			Message: appErr.Message,
			Details: errorDetails(appErr),
		},
		RequestID: apimw.RequestID(c),
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, env)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write error response")
	}
}

// classify maps err onto the error taxonomy. Unknown errors become a generic
// INTERNAL_ERROR so their text never reaches the client.
func classify(err error) (*apperrors.Error, int) {
	if appErr, ok := apperrors.As(err); ok {
		return appErr, apperrors.HTTPStatus(appErr.Kind)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return apperrors.Internal("internal server error", err), he.Code
		}
		message := http.StatusText(he.Code)
		if he.Message != nil {
			message = fmt.Sprint(he.Message)
		}
		return apperrors.Validation(message), he.Code
	}

	return apperrors.Internal("internal server error", err), http.StatusInternalServerError
}

func errorDetails(appErr *apperrors.Error) interface{} {
	if len(appErr.Details) == 0 && len(appErr.Fields) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		details[k] = v
	}
	if len(appErr.Fields) > 0 {
		details["fields"] = appErr.Fields
	}
	return details
}
