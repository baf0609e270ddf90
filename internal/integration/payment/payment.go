// Package payment creates hosted checkout and billing-portal sessions through
// a Stripe-compatible API.
//
// Card data never touches this server. Both calls return a URL on the
// vendor's domain and the browser is redirected there.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/integration"
)

const (
	vendor = "payments"

	DefaultBaseURL = "https://api.stripe.com"
)

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// CheckoutRequest describes a subscription checkout. Exactly one of
// CustomerID and CustomerEmail is sent; CustomerID wins when both are set.
type CheckoutRequest struct {
	PriceID       string
	UserID        string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Session is a hosted page to redirect to.
type Session struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Customer string `json:"customer,omitempty"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.Breaker
	logger  *slog.Logger
}

func New(cfg Config, b *breaker.Breaker, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: b,
		logger:  logger,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.SecretKey != ""
}

// CreateCheckoutSession starts a subscription checkout.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutRequest) (*Session, error) {
	if in.PriceID == "" {
		return nil, apperror.ValidationFailed("priceId", "a price is required")
	}
	if in.SuccessURL == "" || in.CancelURL == "" {
		return nil, apperror.ValidationFailed("successUrl", "success and cancel URLs are required")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", in.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)
	if in.UserID != "" {
		form.Set("client_reference_id", in.UserID)
	}
	switch {
	case in.CustomerID != "":
		form.Set("customer", in.CustomerID)
	case in.CustomerEmail != "":
		form.Set("customer_email", in.CustomerEmail)
	}

	return c.post(ctx, "/v1/checkout/sessions", form)
}

// CreatePortalSession opens the billing portal for an existing customer.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	if customerID == "" {
		return nil, apperror.ValidationFailed("customerId", "no billing account exists yet")
	}
	form := url.Values{}
	form.Set("customer", customerID)
	if returnURL != "" {
		form.Set("return_url", returnURL)
	}
	return c.post(ctx, "/v1/billing_portal/sessions", form)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*Session, error) {
	if !c.Enabled() {
		return nil, apperror.Unavailable(vendor)
	}
	return breaker.Execute(c.breaker, func() (*Session, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(c.cfg.BaseURL, "/")+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("payment: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

		var s Session
		if err := integration.SendJSON(c.http, vendor, req, &s, c.logger); err != nil {
			return nil, err
		}
		if s.URL == "" {
			c.logger.Warn("payment vendor returned a session without a URL", slog.String("sessionId", s.ID))
			return nil, apperror.Unavailable(vendor)
		}
		return &s, nil
	})
}
