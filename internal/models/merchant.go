package models

import "time"

// Merchant is an API consumer. APISecretHash holds a bcrypt hash; the
// plaintext secret is only ever returned at creation time.
type Merchant struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	APIKey        string    `db:"api_key" json:"apiKey"`
	APISecretHash string    `db:"api_secret_hash" json:"-"`
	WebhookURL    *string   `db:"webhook_url" json:"webhookUrl,omitempty"`
	WebhookSecret string    `db:"webhook_secret" json:"-"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"-"`
}
