package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	kitchenservice "github.com/matbakhapp/matbakh/internal/kitchen/service"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	stockdomain "github.com/matbakhapp/matbakh/internal/stock/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &orderdomain.ValidationError{Field: field, Reason: message}
}

func mapError(err error) (int, errorPayload) {
	var (
		invalid      *orderdomain.ValidationError
		insufficient *stockdomain.InsufficientStockError
		transition   *orderdomain.InvalidTransitionError
		denied       *orderdomain.NotAuthorizedError
		duplicate    *settlementdomain.DuplicateInvoiceError
		immutable    *settlementdomain.ImmutableInvoiceError
	)

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: invalid.Field, Code: "invalid_" + invalid.Field, Message: invalid.Reason},
			},
		}

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrEmptyCart),
		errors.Is(err, stockdomain.ErrInvalidQuantity),
		errors.Is(err, settlementdomain.ErrInvalidPeriod),
		errors.Is(err, settlementdomain.ErrInvalidAmount),
		errors.Is(err, settlementdomain.ErrInvalidPayoutStatus),
		errors.Is(err, settlementdomain.ErrInvalidPageToken):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.As(err, &denied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: denied.Error(),
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.As(err, &insufficient):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: insufficient.Error(),
		}

	case errors.As(err, &transition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: transition.Error(),
		}

	case errors.As(err, &duplicate):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_invoice",
			Message: duplicate.Error(),
		}

	case errors.As(err, &immutable):
		return http.StatusConflict, errorPayload{
			Type:    "invoice_immutable",
			Message: immutable.Error(),
		}

	case errors.Is(err, stockdomain.ErrOfferNotOrderable):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "offer_not_orderable",
			Message: err.Error(),
		}

	case errors.Is(err, settlementdomain.ErrNoBillableActivity):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "no_billable_activity",
			Message: err.Error(),
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, orderdomain.ErrSubOrderNotFound),
		errors.Is(err, stockdomain.ErrOfferNotFound),
		errors.Is(err, stockdomain.ErrNoStockRecord),
		errors.Is(err, settlementdomain.ErrInvoiceNotFound),
		errors.Is(err, kitchenservice.ErrKitchenNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
