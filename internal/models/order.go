package models

import (
	"encoding/json"
	"time"
)

// Order is the purchase a payment settles against. Orders are created by the
// merchant before collecting a payment and stay immutable afterwards.
type Order struct {
	ID         string          `db:"id" json:"id"`
	MerchantID string          `db:"merchant_id" json:"merchantId"`
	Amount     int64           `db:"amount" json:"amount"`
	Currency   string          `db:"currency" json:"currency"`
	Receipt    *string         `db:"receipt" json:"receipt,omitempty"`
	Notes      json.RawMessage `db:"notes" json:"notes,omitempty"`
	Status     string          `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"-"`
}
