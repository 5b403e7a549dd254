package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiVersion is pinned so ephemeral keys stay decodable by the mobile client.
const apiVersion = "2024-06-20"

type StripeClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewStripeClient(baseURL, secretKey string) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, "", &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *StripeClient) CreateEphemeralKey(ctx context.Context, customerID string) (*EphemeralKey, error) {
	form := url.Values{}
	form.Set("customer", customerID)

	var key EphemeralKey
	if err := c.do(ctx, http.MethodPost, "/v1/ephemeral_keys", form, "", &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *StripeClient) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("usage", "off_session")

	var intent SetupIntent
	if err := c.do(ctx, http.MethodPost, "/v1/setup_intents", form, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *StripeClient) GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	var intent SetupIntent
	if err := c.do(ctx, http.MethodGet, "/v1/setup_intents/"+url.PathEscape(id), nil, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *StripeClient) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	var payload struct {
		ID   string `json:"id"`
		Card struct {
			Brand string `json:"brand"`
			Last4 string `json:"last4"`
		} `json:"card"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payment_methods/"+url.PathEscape(id), nil, "", &payload); err != nil {
		return nil, err
	}
	return &PaymentMethod{ID: payload.ID, Brand: payload.Card.Brand, Last4: payload.Card.Last4}, nil
}

func (c *StripeClient) DetachPaymentMethod(ctx context.Context, id string) error {
	path := "/v1/payment_methods/" + url.PathEscape(id) + "/detach"
	return c.do(ctx, http.MethodPost, path, url.Values{}, "", &struct{}{})
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(input.AmountMinor, 10))
	form.Set("currency", input.Currency)
	form.Set("customer", input.CustomerID)
	form.Set("payment_method", input.PaymentMethodID)
	form.Set("capture_method", "manual")
	// The instrument was verified during setup, so the hold confirms without
	// an interactive step from the speaker.
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	if input.Description != "" {
		form.Set("description", input.Description)
	}

	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, input.IdempotencyKey, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *StripeClient) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *StripeClient) CapturePaymentIntent(ctx context.Context, id string, amountMinor int64) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount_to_capture", strconv.FormatInt(amountMinor, 10))

	path := "/v1/payment_intents/" + url.PathEscape(id) + "/capture"
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, path, form, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *StripeClient) CreateAccount(ctx context.Context, email string) (*Account, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", email)

	var account Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", form, "", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *StripeClient) GetAccount(ctx context.Context, id string) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(id), nil, "", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *StripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*Link, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", refreshURL)
	form.Set("return_url", returnURL)
	form.Set("type", "account_onboarding")

	var link Link
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", form, "", &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *StripeClient) CreateLoginLink(ctx context.Context, accountID string) (*Link, error) {
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/login_links"
	var link Link
	if err := c.do(ctx, http.MethodPost, path, url.Values{}, "", &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", apiVersion)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("processor request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read processor response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode processor response: %w", err)
	}
	return nil
}

func decodeAPIError(statusCode int, payload []byte) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Error.Message == "" {
		return &APIError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("status %d: %s", statusCode, strings.TrimSpace(string(payload))),
		}
	}
	return &APIError{
		StatusCode: statusCode,
		Type:       envelope.Error.Type,
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
	}
}
