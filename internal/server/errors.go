package server

import (
	"errors"
	"net/http"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/labstack/echo/v4"
)

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler renders domain errors as JSON and falls back to echo's
// handling for its own HTTP errors (unknown routes, bad methods).
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		s.echo.DefaultHTTPErrorHandler(err, c)
		return
	}

	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}

	if err := c.JSON(status, map[string]ErrorBody{
		"error": {Code: code, Message: domain.ErrorMessage(err)},
	}); err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}
