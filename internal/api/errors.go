package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/crucible/internal/device"
	"github.com/samcharles93/crucible/internal/qstore"
	"github.com/samcharles93/crucible/pkg/qblock"
)

// errorStatus maps engine sentinels to an HTTP status, error type, and
// machine readable code. Contract violations belong to the caller, device
// failures to the server.
func errorStatus(err error) (status int, errType, code string) {
	switch {
	case errors.Is(err, qstore.ErrUnsupportedDtype):
		return http.StatusBadRequest, "invalid_request_error", "unsupported_dtype"
	case errors.Is(err, qstore.ErrUnsupportedSource):
		return http.StatusBadRequest, "invalid_request_error", "unsupported_source"
	case errors.Is(err, qstore.ErrShapeMismatch):
		return http.StatusBadRequest, "invalid_request_error", "shape_mismatch"
	case errors.Is(err, qstore.ErrDimensionMismatch):
		return http.StatusBadRequest, "invalid_request_error", "dimension_mismatch"
	case errors.Is(err, qstore.ErrRequiresContiguous):
		return http.StatusBadRequest, "invalid_request_error", "requires_contiguous"
	case errors.Is(err, qstore.ErrUnsupportedShape):
		return http.StatusBadRequest, "invalid_request_error", "unsupported_shape"
	case errors.Is(err, qblock.ErrPayload), errors.Is(err, qblock.ErrLength):
		return http.StatusBadRequest, "invalid_request_error", "invalid_payload"
	case errors.Is(err, device.ErrAllocation):
		return http.StatusInternalServerError, "server_error", "allocation_failed"
	default:
		return http.StatusInternalServerError, "server_error", ""
	}
}

func writeDomainError(c *echo.Context, err error) error {
	status, errType, code := errorStatus(err)
	return writeError(c, status, errType, err.Error(), code)
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
		},
	})
}
