// Package models defines the entitlement, submission, review and payment records.
package models

import "time"

type CreditPool string

const (
	PoolATS          CreditPool = "ats_credit"
	PoolOptimization CreditPool = "optimization_credit"
)

func (p CreditPool) Valid() bool {
	return p == PoolATS || p == PoolOptimization
}

type SubscriptionStatus string

const (
	SubscriptionFree    SubscriptionStatus = "free"
	SubscriptionPremium SubscriptionStatus = "premium"
)

// Entitlement is a user's subscription flag plus both credit pools.
type Entitlement struct {
	UserID                string             `json:"userId"`
	ATSCredits            int                `json:"atsCredits"`
	OptimizationCredits   int                `json:"optimizationCredits"`
	SubscriptionStatus    SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionExpiresAt *time.Time         `json:"subscriptionExpiresAt,omitempty"`
}

// NewEntitlement returns the default record for a user the ledger has not seen.
func NewEntitlement(userID string) Entitlement {
	return Entitlement{UserID: userID, SubscriptionStatus: SubscriptionFree}
}

// PremiumAt reports whether the subscription is active at now. A premium
// record without an expiry never lapses.
func (e Entitlement) PremiumAt(now time.Time) bool {
	if e.SubscriptionStatus != SubscriptionPremium {
		return false
	}
	return e.SubscriptionExpiresAt == nil || now.Before(*e.SubscriptionExpiresAt)
}

// EffectiveAt returns a copy whose status reads free once premium has lapsed.
func (e Entitlement) EffectiveAt(now time.Time) Entitlement {
	out := e
	if e.SubscriptionExpiresAt != nil {
		exp := *e.SubscriptionExpiresAt
		out.SubscriptionExpiresAt = &exp
	}
	if e.SubscriptionStatus == SubscriptionPremium && !e.PremiumAt(now) {
		out.SubscriptionStatus = SubscriptionFree
	}
	return out
}

func (e Entitlement) Credits(pool CreditPool) int {
	switch pool {
	case PoolATS:
		return e.ATSCredits
	case PoolOptimization:
		return e.OptimizationCredits
	}
	return 0
}

// ExtendedExpiry computes the expiry after buying one more period. An active
// subscription is extended from its current expiry, anything else from now.
// A premium record with no expiry stays open-ended.
func (e Entitlement) ExtendedExpiry(now time.Time, period time.Duration) *time.Time {
	if e.PremiumAt(now) && e.SubscriptionExpiresAt == nil {
		return nil
	}
	start := now
	if e.PremiumAt(now) {
		start = *e.SubscriptionExpiresAt
	}
	exp := start.Add(period)
	return &exp
}
