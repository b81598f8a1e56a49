package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/launchpad/internal/config"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const defaultHTTPTimeout = 12 * time.Second

// Gateway talks to the Stripe REST API with form-encoded requests.
type Gateway struct {
	apiKey  string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *zap.Logger
}

func NewGateway(cfg config.Config, log *zap.Logger) *Gateway {
	return newGateway(cfg.Stripe.SecretKey, cfg.Stripe.APIBaseURL, &http.Client{Timeout: defaultHTTPTimeout}, log)
}

func newGateway(apiKey, baseURL string, client *http.Client, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	g := &Gateway{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		client:  client,
		log:     log.Named("payment.stripe"),
	}
	g.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Card declines and validation errors are answers, not outages.
		IsSuccessful: func(err error) bool {
			var apiErr *apiError
			return err == nil || errors.As(err, &apiErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

func (g *Gateway) Provider() string {
	return ProviderName
}

type stripePaymentIntent struct {
	ID               string `json:"id"`
	ClientSecret     string `json:"client_secret"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeCheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

type stripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

// apiError is a well-formed Stripe error response.
type apiError struct {
	status  int
	kind    string
	code    string
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("stripe %d %s: %s", e.status, e.code, e.message)
}

func (g *Gateway) CreateTransaction(ctx context.Context, req paymentdomain.TransactionRequest) (*paymentdomain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", strings.ToLower(req.Currency))
	values.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		values.Set("description", req.Description)
	}
	if req.ReceiptEmail != "" {
		values.Set("receipt_email", req.ReceiptEmail)
	}
	for k, v := range req.Metadata {
		values.Set("metadata["+k+"]", v)
	}

	var intent stripePaymentIntent
	if err := g.do(ctx, http.MethodPost, "/v1/payment_intents", values, req.IdempotencyKey, &intent); err != nil {
		return nil, err
	}
	return intent.toTransaction(), nil
}

func (g *Gateway) RetrieveTransaction(ctx context.Context, id string) (*paymentdomain.Transaction, error) {
	var intent stripePaymentIntent
	if err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "", &intent); err != nil {
		return nil, err
	}
	return intent.toTransaction(), nil
}

func (g *Gateway) CancelTransaction(ctx context.Context, id string) error {
	var intent stripePaymentIntent
	return g.do(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(id)+"/cancel", url.Values{}, "cancel:"+id, &intent)
}

func (g *Gateway) CreateHostedSession(ctx context.Context, req paymentdomain.HostedSessionRequest) (*paymentdomain.HostedSession, error) {
	if len(req.Lines) == 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	if req.CustomerEmail != "" {
		values.Set("customer_email", req.CustomerEmail)
	}
	currency := strings.ToLower(req.Currency)
	for i, line := range req.Lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		values.Set(prefix+"[price_data][currency]", currency)
		values.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitAmount, 10))
		values.Set(prefix+"[price_data][product_data][name]", line.Name)
		values.Set(prefix+"[quantity]", strconv.Itoa(line.Quantity))
	}
	for k, v := range req.Metadata {
		values.Set("metadata["+k+"]", v)
		values.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	var session stripeCheckoutSession
	if err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", values, req.IdempotencyKey, &session); err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, fmt.Errorf("%w: hosted session without url", paymentdomain.ErrProviderUnavailable)
	}
	return session.toHostedSession(), nil
}

func (g *Gateway) RetrieveHostedSession(ctx context.Context, id string) (*paymentdomain.HostedSession, error) {
	var session stripeCheckoutSession
	if err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, "", &session); err != nil {
		return nil, err
	}
	return session.toHostedSession(), nil
}

func (g *Gateway) ExpireHostedSession(ctx context.Context, id string) error {
	var session stripeCheckoutSession
	return g.do(ctx, http.MethodPost, "/v1/checkout/sessions/"+url.PathEscape(id)+"/expire", url.Values{}, "expire:"+id, &session)
}

func (g *Gateway) do(ctx context.Context, method, path string, values url.Values, idempotencyKey string, out any) error {
	if g.apiKey == "" {
		return fmt.Errorf("%w: %w", paymentdomain.ErrProviderUnavailable, paymentdomain.ErrInvalidConfig)
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		return g.roundTrip(ctx, method, path, values, idempotencyKey)
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			if apiErr.kind == "card_error" {
				return fmt.Errorf("%w: %s", paymentdomain.ErrPaymentDeclined, apiErr.code)
			}
			return fmt.Errorf("%w: %w", paymentdomain.ErrProviderUnavailable, apiErr)
		}
		return fmt.Errorf("%w: %w", paymentdomain.ErrProviderUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", paymentdomain.ErrProviderUnavailable, err)
	}
	return nil
}

func (g *Gateway) roundTrip(ctx context.Context, method, path string, values url.Values, idempotencyKey string) ([]byte, error) {
	var reader io.Reader
	if values != nil {
		reader = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("stripe status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.Unmarshal(body, &stripeErr); err != nil {
			return nil, fmt.Errorf("stripe status %d", resp.StatusCode)
		}
		code := firstNonEmpty(stripeErr.Error.DeclineCode, stripeErr.Error.Code, "stripe_request_failed")
		return nil, &apiError{
			status:  resp.StatusCode,
			kind:    stripeErr.Error.Type,
			code:    code,
			message: strings.TrimSpace(stripeErr.Error.Message),
		}
	}
	return body, nil
}

func (p stripePaymentIntent) toTransaction() *paymentdomain.Transaction {
	tx := &paymentdomain.Transaction{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Amount:       p.Amount,
		Currency:     strings.ToUpper(p.Currency),
	}
	switch p.Status {
	case "succeeded":
		tx.Status = paymentdomain.TransactionSucceeded
	case "processing":
		tx.Status = paymentdomain.TransactionProcessing
	case "canceled":
		tx.Status = paymentdomain.TransactionCanceled
	case "requires_payment_method":
		if p.LastPaymentError != nil {
			tx.Status = paymentdomain.TransactionDeclined
			tx.FailureReason = firstNonEmpty(p.LastPaymentError.Code, p.LastPaymentError.Message)
		} else {
			tx.Status = paymentdomain.TransactionRequiresAction
		}
	default:
		tx.Status = paymentdomain.TransactionRequiresAction
	}
	return tx
}

func (s stripeCheckoutSession) toHostedSession() *paymentdomain.HostedSession {
	return &paymentdomain.HostedSession{
		ID:            s.ID,
		URL:           s.URL,
		Paid:          s.PaymentStatus == "paid",
		TransactionID: s.PaymentIntent,
		AmountTotal:   s.AmountTotal,
		Currency:      strings.ToUpper(s.Currency),
	}
}
