package models

import "time"

type PaymentMethod string
type PaymentStatus string

const (
	MethodUPI  PaymentMethod = "upi"
	MethodCard PaymentMethod = "card"
)

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSuccess    PaymentStatus = "success"
	PaymentFailed     PaymentStatus = "failed"
)

// Payment captures the lifecycle of a single settlement attempt against an
// order. Amount and currency are copied from the order at creation and never
// change; only Status, ErrorCode and ErrorDescription move afterwards, and
// only through legal transitions.
type Payment struct {
	ID               string        `db:"id" json:"id"`
	OrderID          string        `db:"order_id" json:"orderId"`
	MerchantID       string        `db:"merchant_id" json:"-"`
	Amount           int64         `db:"amount" json:"amount"`
	Currency         string        `db:"currency" json:"currency"`
	Method           PaymentMethod `db:"method" json:"method"`
	Status           PaymentStatus `db:"status" json:"status"`
	VPA              *string       `db:"vpa" json:"vpa,omitempty"`
	CardNetwork      *string       `db:"card_network" json:"cardNetwork,omitempty"`
	CardLast4        *string       `db:"card_last4" json:"cardLast4,omitempty"`
	ErrorCode        *string       `db:"error_code" json:"errorCode,omitempty"`
	ErrorDescription *string       `db:"error_description" json:"errorDescription,omitempty"`
	// DeclineCode records the settlement decision made deterministically at
	// creation time. The worker turns it into a terminal failed state; it is
	// never exposed before settlement.
	DeclineCode    *string   `db:"decline_code" json:"-"`
	DeclineReason  *string   `db:"decline_reason" json:"-"`
	IdempotencyKey *string   `db:"idempotency_key" json:"-"`
	Captured       bool      `db:"captured" json:"captured"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// paymentTransitions is the full lifecycle graph. Terminal states have no
// outgoing edges; a settled payment record is immutable.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing},
	PaymentProcessing: {PaymentSuccess, PaymentFailed},
}

// CanTransitionPayment reports whether moving a payment from one status to
// another is legal.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentFailed
}
