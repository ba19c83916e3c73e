package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/medoffice-workflow/internal/application/service"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// errorStatus maps an application error to an HTTP status and a message the
// caller can act on. name resolves status ids for display.
func errorStatus(err error, name func(id string) string) (int, string) {
	var te *domainwf.TransitionError
	if errors.As(err, &te) {
		switch {
		case errors.Is(te.Kind, domainwf.ErrNoOpTransition):
			return http.StatusUnprocessableEntity, fmt.Sprintf("patient is already in %s", name(te.To))
		case errors.Is(te.Kind, domainwf.ErrApprovalRequired):
			return http.StatusForbidden, fmt.Sprintf("this move needs approval first (%s to %s)", name(te.From), name(te.To))
		default:
			return http.StatusUnprocessableEntity, fmt.Sprintf("cannot move from %s to %s directly", name(te.From), name(te.To))
		}
	}

	switch {
	case errors.Is(err, domainwf.ErrLocked):
		return http.StatusConflict, "another change for this patient is in progress; nothing was saved, retry"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out, state unknown; retry with the same idempotency key"
	case errors.Is(err, domainwf.ErrConflict):
		return http.StatusConflict, "patient record changed concurrently; reload and retry"
	case errors.Is(err, domainwf.ErrDuplicateID), errors.Is(err, domainwf.ErrDuplicateRule):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domainwf.ErrInUse):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domainwf.ErrNotFound), errors.Is(err, domainwf.ErrNoRule):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domainwf.ErrInvalidStatus), errors.Is(err, service.ErrInvalidSummaryType),
		errors.Is(err, service.ErrInvalidWorkbook):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domainwf.ErrStorage):
		return http.StatusInternalServerError, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// respondError writes the mapped error and logs server-side failures
func (h *Handlers) respondError(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	status, text := errorStatus(err, h.statusName)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append(keysAndValues, "error", err)...)
	}
	c.JSON(status, Response{
		Success: false,
		Error:   text,
	})
}

func badRequest(c *gin.Context, text string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   text,
	})
}
