package models

import (
	"encoding/json"
	"time"
)

type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "pending"
	WebhookDelivered WebhookStatus = "delivered"
	WebhookExhausted WebhookStatus = "exhausted"
)

// Webhook event types emitted by the pipeline.
const (
	EventPaymentCreated  = "payment.created"
	EventPaymentPending  = "payment.pending"
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
	EventRefundSucceeded = "refund.succeeded"
	EventRefundFailed    = "refund.failed"
)

// WebhookDelivery tracks one outbound event to a merchant endpoint across its
// whole attempt sequence. Attempts counts tries within the current sequence;
// a manual retry resets it and starts a fresh sequence.
type WebhookDelivery struct {
	ID            string          `db:"id" json:"id"`
	MerchantID    string          `db:"merchant_id" json:"-"`
	Event         string          `db:"event" json:"event"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        WebhookStatus   `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	NextRetryAt   *time.Time      `db:"next_retry_at" json:"nextRetryAt,omitempty"`
	LastAttemptAt *time.Time      `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"-"`
}

// WebhookDeliveryAttempt is one row of the append-only delivery log. Rows are
// never mutated once written; a retry appends a new row.
type WebhookDeliveryAttempt struct {
	ID           int64     `db:"id" json:"id"`
	DeliveryID   string    `db:"delivery_id" json:"deliveryId"`
	AttemptNo    int       `db:"attempt_no" json:"attemptNo"`
	Signature    string    `db:"signature" json:"signature"`
	HTTPStatus   *int      `db:"http_status" json:"httpStatus,omitempty"`
	ResponseBody *string   `db:"response_body" json:"responseBody,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
