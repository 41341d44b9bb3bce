package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
)

// statusClientClosedRequest клиент отключился до ответа
const statusClientClosedRequest = 499

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Available *int              `json:"available,omitempty"`
	Requested *int              `json:"requested,omitempty"`
}

func mapErrorToStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, domain.ErrResourceNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "dependency_unavailable"
	case errors.Is(err, domain.ErrInvalidCredential):
		return http.StatusForbidden, "invalid_credential"
	case errors.Is(err, auth.ErrMissingCredential), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError отвечает кодом по виду ошибки; детали внутренних ошибок
// остаются в логе
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, code := mapErrorToStatus(err)
	body := errorBody{Error: code, Message: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	var serr *domain.StockError
	if errors.As(err, &serr) {
		if serr.AvailableKnown() {
			body.Available = &serr.Available
		}
		body.Requested = &serr.Requested
	}

	ctx := c.Request.Context()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout:
		log.ErrorContext(ctx, "request failed", "path", c.FullPath(), "err", err)
		body.Message = "internal server error"
	case status >= http.StatusInternalServerError:
		log.WarnContext(ctx, "request failed", "path", c.FullPath(), "status", status, "err", err)
	default:
		log.DebugContext(ctx, "request rejected", "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

// bindError переводит ошибки binding в ответ с полями
func bindError(c *gin.Context, err error) {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		badRequest(c, "invalid json")
		return
	}
	verr := &domain.ValidationError{}
	for _, fe := range ves {
		verr.Add(fieldPath(fe), describe(fe))
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Error:   "validation_failed",
		Message: verr.Error(),
		Fields:  verr.Fields,
	})
}

// fieldPath json-путь поля без имени корневой структуры
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind().String() == "slice" {
			return "must contain at least " + fe.Param() + " element(s)"
		}
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "must be a valid URL"
	default:
		return "failed on " + fe.Tag()
	}
}
