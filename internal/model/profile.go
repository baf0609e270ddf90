package model

import "time"

// Profile represents an authenticated user of the application.
//
// A profile is created either by GitHub OAuth (GitHubID set, no password) or by
// password registration (PasswordHash set, GitHubID zero). Both paths end with
// the same JWT session.
type Profile struct {
	ID           string    `json:"id"`
	GitHubID     int64     `json:"githubId,omitempty"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SubscriptionStatus tracks the billing state recorded locally. Without
// webhooks the service only ever writes "pending"; the other states exist for
// rows updated out of band.
type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type Subscription struct {
	UserID            string             `json:"userId"`
	CustomerID        string             `json:"customerId,omitempty"`
	CheckoutSessionID string             `json:"checkoutSessionId,omitempty"`
	PriceID           string             `json:"priceId"`
	Status            SubscriptionStatus `json:"status"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}
