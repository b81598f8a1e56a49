package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	benefitdomain "github.com/smallbiznis/launchpad/internal/benefit/domain"
	cartdomain "github.com/smallbiznis/launchpad/internal/cart/domain"
	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	fulfillmentdomain "github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	"github.com/smallbiznis/launchpad/internal/identity"
	launchdomain "github.com/smallbiznis/launchpad/internal/launch/domain"
	orderdomain "github.com/smallbiznis/launchpad/internal/order/domain"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/launchpad/internal/pricing/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// Error kinds exposed to clients.
const (
	kindValidation = "validation_error"
	kindPricing    = "pricing_error"
	kindProvider   = "payment_provider_error"
	kindDeclined   = "payment_declined"
	kindConflict   = "conflict"
	kindNotFound   = "not_found"
	kindRateLimit  = "rate_limited"
	kindUnauth     = "unauthorized"
	kindForbidden  = "forbidden"
	kindInternal   = "internal_error"
)

type errorClass struct {
	kind    string
	status  int
	message string
	errs    []error
}

// errorClasses is matched in order; the first sentinel found becomes the
// response code.
var errorClasses = []errorClass{
	{
		kind: kindUnauth, status: http.StatusUnauthorized, message: "unauthorized",
		errs: []error{ErrUnauthorized, identity.ErrUnauthenticated, authorization.ErrInvalidActor, paymentdomain.ErrInvalidSignature},
	},
	{
		kind: kindForbidden, status: http.StatusForbidden, message: "forbidden",
		errs: []error{ErrForbidden, identity.ErrForbidden, authorization.ErrForbidden},
	},
	{
		kind: kindRateLimit, status: http.StatusTooManyRequests, message: "too many checkout attempts",
		errs: []error{paymentdomain.ErrRateLimited},
	},
	{
		kind: kindDeclined, status: http.StatusPaymentRequired, message: "payment was declined",
		errs: []error{paymentdomain.ErrPaymentDeclined},
	},
	{
		kind: kindProvider, status: http.StatusBadGateway, message: "payment provider unavailable",
		errs: []error{paymentdomain.ErrCheckoutUnavailable, paymentdomain.ErrProviderUnavailable},
	},
	{
		kind: kindPricing, status: http.StatusUnprocessableEntity, message: "pricing error",
		errs: []error{
			pricingdomain.ErrInvalidOffering,
			pricingdomain.ErrInvalidQuantity,
			pricingdomain.ErrCurrencyMismatch,
			cartdomain.ErrInvalidOffering,
			paymentdomain.ErrInvalidPackage,
		},
	},
	{
		kind: kindNotFound, status: http.StatusNotFound, message: "not found",
		errs: []error{
			ErrNotFound,
			gorm.ErrRecordNotFound,
			catalogdomain.ErrNotFound,
			orderdomain.ErrOrderNotFound,
			launchdomain.ErrNotFound,
			launchdomain.ErrSimulationDisabled,
			fulfillmentdomain.ErrNotStarted,
			benefitdomain.ErrBenefitNotFound,
			benefitdomain.ErrCodeNotFound,
			paymentdomain.ErrAttemptNotFound,
			paymentdomain.ErrProviderNotFound,
		},
	},
	{
		kind: kindConflict, status: http.StatusConflict, message: "conflict",
		errs: []error{
			catalogdomain.ErrCodeTaken,
			orderdomain.ErrInvalidTransition,
			orderdomain.ErrNotPaid,
			launchdomain.ErrFormLocked,
			launchdomain.ErrFormNotComplete,
			launchdomain.ErrPaymentSettled,
			launchdomain.ErrOpenRequestExists,
			launchdomain.ErrStepOutOfOrder,
			benefitdomain.ErrCodeAlreadyIssued,
			benefitdomain.ErrCodeAlreadyUsed,
			paymentdomain.ErrAlreadyPaid,
			paymentdomain.ErrNotPayable,
			paymentdomain.ErrCheckoutInProgress,
			paymentdomain.ErrAttemptClosed,
			paymentdomain.ErrFallbackRefused,
			paymentdomain.ErrEmbeddedUnavailable,
			paymentdomain.ErrPriceChanged,
			paymentdomain.ErrAmountMismatch,
			paymentdomain.ErrTransactionNotComplete,
		},
	},
	{
		kind: kindValidation, status: http.StatusBadRequest, message: "validation error",
		errs: []error{
			ErrInvalidRequest,
			pricingdomain.ErrEmptyQuote,
			cartdomain.ErrInvalidSession,
			cartdomain.ErrInvalidQuantity,
			catalogdomain.ErrInvalidName,
			catalogdomain.ErrInvalidCategory,
			catalogdomain.ErrInvalidPrice,
			catalogdomain.ErrInvalidCurrency,
			catalogdomain.ErrInvalidID,
			orderdomain.ErrInvalidID,
			orderdomain.ErrInvalidContact,
			orderdomain.ErrInvalidTransactionID,
			launchdomain.ErrInvalidID,
			launchdomain.ErrInvalidStep,
			launchdomain.ErrInvalidStepPayload,
			launchdomain.ErrInvalidEmail,
			launchdomain.ErrInvalidURL,
			launchdomain.ErrInvalidCompanyType,
			launchdomain.ErrInvalidCapital,
			launchdomain.ErrInvalidShareholders,
			launchdomain.ErrInvalidAdminStatus,
			launchdomain.ErrIncompleteStep,
			launchdomain.ErrIncompleteForm,
			fulfillmentdomain.ErrInvalidLaunchRequest,
			fulfillmentdomain.ErrInvalidKind,
			fulfillmentdomain.ErrInvalidStatus,
			fulfillmentdomain.ErrInvalidProgress,
			fulfillmentdomain.ErrInvalidDeliveryURL,
			fulfillmentdomain.ErrEmptyPatch,
			benefitdomain.ErrInvalidID,
			benefitdomain.ErrInvalidName,
			benefitdomain.ErrInvalidPartner,
			benefitdomain.ErrInvalidCode,
			paymentdomain.ErrInvalidProvider,
			paymentdomain.ErrInvalidPayload,
			paymentdomain.ErrInvalidEvent,
			paymentdomain.ErrInvalidTarget,
			paymentdomain.ErrInvalidAmount,
			paymentdomain.ErrInvalidCurrency,
			paymentdomain.ErrInvalidAttemptID,
			paymentdomain.ErrInvalidSessionID,
			auditdomain.ErrInvalidPageToken,
			auditdomain.ErrInvalidTimeRange,
		},
	},
}

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	internal := errorPayload{Type: kindInternal, Message: "internal server error"}
	if err == nil {
		return http.StatusInternalServerError, internal
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    kindValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var incomplete *launchdomain.IncompleteError
	if errors.As(err, &incomplete) {
		return http.StatusBadRequest, errorPayload{
			Type:    kindValidation,
			Code:    incomplete.Err.Error(),
			Message: "required information is missing",
			Errors:  incompleteErrors(incomplete),
		}
	}

	var lineErr *pricingdomain.LineError
	if errors.As(err, &lineErr) {
		code := lineErr.Err.Error()
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    kindPricing,
			Code:    code,
			Message: "pricing error",
			Errors: []ValidationError{{
				Field:   "items",
				Code:    code,
				Message: lineErr.Error(),
			}},
		}
	}

	class, sentinel, ok := classify(err)
	if !ok {
		return http.StatusInternalServerError, internal
	}
	payload := errorPayload{
		Type:    class.kind,
		Code:    sentinel.Error(),
		Message: class.message,
	}
	if class.kind == kindValidation {
		payload.Errors = []ValidationError{{
			Field:   validationErrorField(sentinel.Error()),
			Code:    sentinel.Error(),
			Message: "invalid value",
		}}
	}
	return class.status, payload
}

func classify(err error) (errorClass, error, bool) {
	for _, class := range errorClasses {
		for _, sentinel := range class.errs {
			if errors.Is(err, sentinel) {
				return class, sentinel, true
			}
		}
	}
	return errorClass{}, nil, false
}

// classifyErrorForLog feeds the request logger.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusInternalServerError {
		return kindInternal, "internal_error"
	}
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func incompleteErrors(e *launchdomain.IncompleteError) []ValidationError {
	out := make([]ValidationError, 0, len(e.Missing)+len(e.Steps))
	for _, step := range e.Steps {
		out = append(out, ValidationError{
			Field:   "step_" + strconv.Itoa(step),
			Code:    "incomplete",
			Message: "step " + strconv.Itoa(step) + " is incomplete",
		})
	}
	for _, field := range e.Missing {
		out = append(out, ValidationError{
			Field:   field,
			Code:    "required",
			Message: field + " is required",
		})
	}
	return out
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
