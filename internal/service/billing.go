package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/integration/payment"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// PaymentGateway is the part of the payment client billing needs.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, in payment.CheckoutRequest) (*payment.Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*payment.Session, error)
}

// BillingURLs are the redirect targets handed to the payment vendor.
type BillingURLs struct {
	DefaultPriceID  string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// BillingService starts checkouts and opens the billing portal. Without
// webhooks it only records that a checkout was started.
type BillingService struct {
	gateway       PaymentGateway
	profiles      repository.ProfileRepository
	subscriptions repository.SubscriptionRepository
	urls          BillingURLs
	logger        *slog.Logger
}

// NewBillingService accepts a nil gateway; billing then reports payments as
// unavailable.
func NewBillingService(
	gateway PaymentGateway,
	profiles repository.ProfileRepository,
	subscriptions repository.SubscriptionRepository,
	urls BillingURLs,
	logger *slog.Logger,
) *BillingService {
	return &BillingService{
		gateway:       gateway,
		profiles:      profiles,
		subscriptions: subscriptions,
		urls:          urls,
		logger:        logger,
	}
}

// Checkout creates a subscription checkout for priceID, or the default price
// when empty, and records a pending subscription.
func (s *BillingService) Checkout(ctx context.Context, userID, priceID string) (*payment.Session, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to subscribe")
	}
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		priceID = s.urls.DefaultPriceID
	}
	if priceID == "" {
		return nil, apperror.ValidationFailed("priceId", "a price is required")
	}
	if s.gateway == nil {
		return nil, apperror.Unavailable("payments")
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	// An existing customer keeps one billing account across checkouts.
	var customerID string
	existing, err := s.subscriptions.GetSubscription(ctx, userID)
	switch {
	case err == nil:
		customerID = existing.CustomerID
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("loading subscription: %w", err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		PriceID:       priceID,
		UserID:        userID,
		CustomerID:    customerID,
		CustomerEmail: profile.Email,
		SuccessURL:    s.urls.SuccessURL,
		CancelURL:     s.urls.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		UserID:            userID,
		CustomerID:        session.Customer,
		CheckoutSessionID: session.ID,
		PriceID:           priceID,
		Status:            model.SubscriptionPending,
	}
	if err := s.subscriptions.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("recording subscription: %w", err)
	}

	s.logger.Info("checkout started",
		slog.String("userId", userID),
		slog.String("priceId", priceID),
		slog.String("sessionId", session.ID),
	)
	return session, nil
}

// Portal opens the billing portal. It needs a customer id recorded by an
// earlier checkout.
func (s *BillingService) Portal(ctx context.Context, userID string) (*payment.Session, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to manage billing")
	}
	if s.gateway == nil {
		return nil, apperror.Unavailable("payments")
	}

	sub, err := s.subscriptions.GetSubscription(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) || (err == nil && sub.CustomerID == "") {
		return nil, apperror.ValidationFailed("customerId", "no billing account exists yet")
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}

	return s.gateway.CreatePortalSession(ctx, sub.CustomerID, s.urls.PortalReturnURL)
}

// Subscription returns the locally recorded subscription.
func (s *BillingService) Subscription(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to view billing")
	}
	return s.subscriptions.GetSubscription(ctx, userID)
}
