package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/labstack/echo/v4"
)

var statusByKind = map[core.ErrorKind]int{
	core.KindValidation:       http.StatusBadRequest,
	core.KindNotFound:         http.StatusNotFound,
	core.KindForbidden:        http.StatusForbidden,
	core.KindConflict:         http.StatusConflict,
	core.KindInvalidState:     http.StatusBadRequest,
	core.KindRefundIneligible: http.StatusBadRequest,
	core.KindInvalidSignature: http.StatusBadRequest,
	core.KindUpstreamProvider: http.StatusBadGateway,
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// respondError renders err with the status its kind maps to. Unclassified errors are logged and hidden.
func respondError(c echo.Context, err error) error {
	log := logger.FromContext(c.Request().Context())

	var de *core.Error
	if errors.As(err, &de) {
		status, ok := statusByKind[de.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			log.Error("request failed", "kind", de.Kind, "error", err)
		}
		return errorJSON(c, status, string(de.Kind), de.Message)
	}

	log.Error("request failed", "error", err)
	return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// ErrorHandler renders errors returned by handlers and by echo itself (unknown routes, bad binds)
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		if he.Code == http.StatusBadRequest {
			code = string(core.KindValidation)
		}
		if werr := errorJSON(c, he.Code, code, fmt.Sprint(he.Message)); werr != nil {
			logger.Get().Error("failed to write error response", "error", werr)
		}
		return
	}

	if werr := respondError(c, err); werr != nil {
		logger.Get().Error("failed to write error response", "error", werr)
	}
}
