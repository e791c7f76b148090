package models

import "time"

type ServiceType string

const (
	ServiceATSCredit          ServiceType = "ats_credit"
	ServiceOptimizationCredit ServiceType = "optimization_credit"
	ServiceSubscription       ServiceType = "subscription"
	ServiceReview             ServiceType = "review"
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceATSCredit, ServiceOptimizationCredit, ServiceSubscription, ServiceReview:
		return true
	}
	return false
}

// RequiresResume reports whether a checkout must name a target submission.
func (t ServiceType) RequiresResume() bool {
	return t == ServiceReview
}

// PaymentOutcome records what applying a session did.
type PaymentOutcome string

const (
	OutcomePending  PaymentOutcome = "pending"
	OutcomeGranted  PaymentOutcome = "granted"
	OutcomeUnpaid   PaymentOutcome = "unpaid"
	OutcomeRejected PaymentOutcome = "rejected"
)

// GatewayStatus is the gateway's view of a checkout session. Open means the
// payment has not reached a final state yet.
type GatewayStatus string

const (
	GatewayPaid   GatewayStatus = "paid"
	GatewayUnpaid GatewayStatus = "unpaid"
	GatewayOpen   GatewayStatus = "open"
)

// Metadata keys written on every checkout and checked when it is applied.
const (
	MetaServiceType = "service_type"
	MetaUserID      = "user_id"
	MetaResumeID    = "resume_id"
)

// PaymentSession is the idempotency record for one external checkout.
type PaymentSession struct {
	SessionID      string         `json:"sessionId"`
	ServiceType    ServiceType    `json:"serviceType"`
	TargetResumeID string         `json:"targetResumeId,omitempty"`
	OwnerID        string         `json:"ownerId"`
	AmountCents    int64          `json:"amountCents"`
	Currency       string         `json:"currency"`
	Outcome        PaymentOutcome `json:"outcome"`
	CreatedAt      time.Time      `json:"createdAt"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	AppliedAt      *time.Time     `json:"appliedAt,omitempty"`
}

func (p PaymentSession) Applied() bool {
	return p.AppliedAt != nil
}

// Metadata is what the gateway should echo back for this session.
func (p PaymentSession) Metadata() map[string]string {
	md := map[string]string{
		MetaServiceType: string(p.ServiceType),
		MetaUserID:      p.OwnerID,
	}
	if p.TargetResumeID != "" {
		md[MetaResumeID] = p.TargetResumeID
	}
	return md
}

func (p PaymentSession) Clone() PaymentSession {
	out := p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		out.ExpiresAt = &t
	}
	if p.AppliedAt != nil {
		t := *p.AppliedAt
		out.AppliedAt = &t
	}
	return out
}

// Checkout is returned to the client so it can redirect to the gateway.
type Checkout struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}
