package models

import "time"

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundSucceeded  RefundStatus = "succeeded"
	RefundFailed     RefundStatus = "failed"
)

// Refund is a partial or full reversal of a successful payment. The sum of
// succeeded refund amounts for a payment never exceeds the captured amount;
// the worker re-validates this immediately before committing a success.
type Refund struct {
	ID          string       `db:"id" json:"id"`
	PaymentID   string       `db:"payment_id" json:"paymentId"`
	MerchantID  string       `db:"merchant_id" json:"-"`
	Amount      int64        `db:"amount" json:"amount"`
	Reason      *string      `db:"reason" json:"reason,omitempty"`
	Status      RefundStatus `db:"status" json:"status"`
	ErrorCode   *string      `db:"error_code" json:"errorCode,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processedAt,omitempty"`
	UpdatedAt   time.Time    `db:"updated_at" json:"-"`
}

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundPending:    {RefundProcessing},
	RefundProcessing: {RefundSucceeded, RefundFailed},
}

// CanTransitionRefund reports whether moving a refund from one status to
// another is legal.
func CanTransitionRefund(from, to RefundStatus) bool {
	for _, next := range refundTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the refund reached a final state.
func (r *Refund) IsTerminal() bool {
	return r.Status == RefundSucceeded || r.Status == RefundFailed
}
