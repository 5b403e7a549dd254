// Package processor wraps the external payment processor's REST API behind a
// typed client. Everything the payments services need goes through the Client
// interface so tests can substitute a stub.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// IntentStatus is the processor's payment-intent lifecycle state.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type EphemeralKey struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

type SetupIntent struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	CustomerID      string `json:"customer"`
	PaymentMethodID string `json:"payment_method"`
	ClientSecret    string `json:"client_secret"`
}

type PaymentMethod struct {
	ID    string `json:"id"`
	Brand string
	Last4 string
}

type PaymentIntent struct {
	ID             string       `json:"id"`
	Status         IntentStatus `json:"status"`
	Amount         int64        `json:"amount"`
	AmountReceived int64        `json:"amount_received"`
	Currency       string       `json:"currency"`
	ClientSecret   string       `json:"client_secret"`
}

type Account struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	ChargesEnabled   bool   `json:"charges_enabled"`
}

type Link struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type CreatePaymentIntentInput struct {
	AmountMinor     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	// IdempotencyKey is the stable per-record correlation key; resending the
	// same key returns the original intent instead of opening a second hold.
	IdempotencyKey string
	Description    string
}

type Client interface {
	CreateCustomer(ctx context.Context, email string) (*Customer, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (*EphemeralKey, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error)
	GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error)
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, id string) error

	CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, amountMinor int64) (*PaymentIntent, error)

	CreateAccount(ctx context.Context, email string) (*Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*Link, error)
	CreateLoginLink(ctx context.Context, accountID string) (*Link, error)
}

// APIError is a typed processor rejection carrying the human-readable message
// the processor nested in its error payload.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("processor: %s", e.Message)
}

// IsAlreadyCaptured reports whether err is the benign rejection the processor
// returns when a second capture races a finished one.
func IsAlreadyCaptured(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "already been captured")
}
