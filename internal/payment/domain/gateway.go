package domain

import "context"

type TransactionStatus string

const (
	TransactionSucceeded      TransactionStatus = "succeeded"
	TransactionProcessing     TransactionStatus = "processing"
	TransactionRequiresAction TransactionStatus = "requires_action"
	TransactionDeclined       TransactionStatus = "declined"
	TransactionCanceled       TransactionStatus = "canceled"
)

type TransactionRequest struct {
	Amount         int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

type Transaction struct {
	ID            string
	ClientSecret  string
	Status        TransactionStatus
	Amount        int64
	Currency      string
	FailureReason string
}

type HostedLine struct {
	Name       string
	UnitAmount int64
	Quantity   int
}

type HostedSessionRequest struct {
	Lines          []HostedLine
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type HostedSession struct {
	ID            string
	URL           string
	Paid          bool
	TransactionID string
	AmountTotal   int64
	Currency      string
}

// Gateway is the payment provider port. Transport failures wrap ErrProviderUnavailable.
type Gateway interface {
	Provider() string
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	RetrieveTransaction(ctx context.Context, id string) (*Transaction, error)
	CancelTransaction(ctx context.Context, id string) error
	CreateHostedSession(ctx context.Context, req HostedSessionRequest) (*HostedSession, error)
	RetrieveHostedSession(ctx context.Context, id string) (*HostedSession, error)
	// ExpireHostedSession closes an unpaid hosted page so it can no longer be paid.
	ExpireHostedSession(ctx context.Context, id string) error
}
