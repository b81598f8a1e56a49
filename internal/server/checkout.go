package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
)

// checkoutView is what the browser renders. It carries either a client
// secret or a redirect URL, never both.
type checkoutView struct {
	ID               int64                  `json:"id,string"`
	TargetType       string                 `json:"target_type"`
	TargetID         int64                  `json:"target_id,string"`
	Mode             paymentdomain.Mode     `json:"mode"`
	State            paymentdomain.State    `json:"state"`
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	Provider         string                 `json:"provider"`
	PublishableKey   string                 `json:"publishable_key,omitempty"`
	ClientSecret     *string                `json:"client_secret,omitempty"`
	HostedURL        *string                `json:"hosted_url,omitempty"`
	FallbackDeadline *time.Time             `json:"fallback_deadline,omitempty"`
	FallbackTrigger  *paymentdomain.Trigger `json:"fallback_trigger,omitempty"`
	FailureReason    *string                `json:"failure_reason,omitempty"`
}

func (s *Server) checkoutView(attempt *paymentdomain.Attempt) checkoutView {
	view := checkoutView{
		ID:              attempt.ID,
		TargetType:      attempt.TargetType,
		TargetID:        attempt.TargetID,
		Mode:            attempt.Mode(),
		State:           attempt.State,
		Amount:          attempt.Amount,
		Currency:        attempt.Currency,
		Provider:        attempt.Provider,
		FallbackTrigger: attempt.FallbackTrigger,
		FailureReason:   attempt.FailureReason,
	}
	switch view.Mode {
	case paymentdomain.ModeEmbedded:
		view.ClientSecret = attempt.ClientSecret
		view.PublishableKey = s.cfg.Stripe.PublishableKey
		view.FallbackDeadline = attempt.FallbackDeadline
	case paymentdomain.ModeRedirect:
		view.HostedURL = attempt.HostedURL
	}
	return view
}

func (s *Server) respondCheckout(c *gin.Context, status int, attempt *paymentdomain.Attempt) {
	c.Set("checkout_attempt_id", strconv.FormatInt(attempt.ID, 10))
	c.JSON(status, gin.H{"data": s.checkoutView(attempt)})
}

func (s *Server) BeginOrderCheckout(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	attempt, err := s.paymentSvc.BeginOrderCheckout(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusCreated, attempt)
}

type beginLaunchCheckoutRequest struct {
	OfferingID int64 `json:"offering_id,string"`
}

func (s *Server) BeginLaunchCheckout(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req beginLaunchCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OfferingID <= 0 {
		AbortWithError(c, newValidationError("offering_id", "required", "offering_id is required"))
		return
	}
	attempt, err := s.paymentSvc.BeginLaunchCheckout(c.Request.Context(), id, req.OfferingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusCreated, attempt)
}

func (s *Server) GetCheckout(c *gin.Context) {
	id, err := parseIDParam(c, "attempt_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	attempt, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusOK, attempt)
}

func (s *Server) ReportCheckoutReady(c *gin.Context) {
	id, err := parseIDParam(c, "attempt_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	attempt, err := s.paymentSvc.ReportReady(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusOK, attempt)
}

type loadErrorRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ReportCheckoutLoadError(c *gin.Context) {
	id, err := parseIDParam(c, "attempt_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req loadErrorRequest
	// The body is optional; a browser that failed to load may send nothing.
	_ = c.ShouldBindJSON(&req)

	attempt, err := s.paymentSvc.ReportLoadError(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusOK, attempt)
}

func (s *Server) ConfirmCheckout(c *gin.Context) {
	id, err := parseIDParam(c, "attempt_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	attempt, err := s.paymentSvc.ConfirmEmbedded(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusOK, attempt)
}

// CompleteHostedReturn handles the provider redirect after a hosted session.
func (s *Server) CompleteHostedReturn(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		AbortWithError(c, paymentdomain.ErrInvalidSessionID)
		return
	}
	attempt, err := s.paymentSvc.CompleteHostedReturn(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusOK, attempt)
}

// CancelHostedCheckout reports the attempt after the client backed out of the
// hosted page. Nothing is changed; the order and cart stay as they were.
func (s *Server) CancelHostedCheckout(c *gin.Context) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Query("attempt_id")), 10, 64)
	if err != nil || id <= 0 {
		AbortWithError(c, paymentdomain.ErrInvalidAttemptID)
		return
	}
	attempt, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCheckout(c, http.StatusOK, attempt)
}

// ListOverpayments shows payments received for targets that were already
// settled, pending refund.
func (s *Server) ListOverpayments(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}
	items, err := s.paymentSvc.ListOverpayments(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
