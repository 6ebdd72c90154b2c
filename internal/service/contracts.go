package service

import (
	"context"
	"time"

	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/queue"
)

// Store contracts consumed by the services and workers. The sqlx
// repositories in internal/repository implement them; tests substitute
// in-memory fakes.

// MerchantStore is the merchant lookup surface.
type MerchantStore interface {
	Create(m *models.Merchant) error
	GetByID(id string) (*models.Merchant, error)
	GetByAPIKey(apiKey string) (*models.Merchant, error)
	GetByEmail(email string) (*models.Merchant, error)
	UpdateWebhookURL(id string, url *string) error
	UpdateWebhookSecret(id, secret string) error
}

// OrderStore is the order persistence surface.
type OrderStore interface {
	Create(o *models.Order) error
	GetByID(id string) (*models.Order, error)
}

// PaymentStore is the payment lifecycle persistence surface.
type PaymentStore interface {
	Create(p *models.Payment) error
	GetByID(id string) (*models.Payment, error)
	ListByMerchant(merchantID string, limit int) ([]models.Payment, error)
	MarkCaptured(id string) (bool, error)
	UpdateStatusFrom(id string, from, to models.PaymentStatus, errCode, errDesc *string) (bool, error)
}

// RefundStore is the refund lifecycle persistence surface.
type RefundStore interface {
	Create(rf *models.Refund) error
	GetByID(id string) (*models.Refund, error)
	SumActive(paymentID string) (int64, error)
	UpdateStatusFrom(id string, from, to models.RefundStatus, errCode *string, processedAt *time.Time) (bool, error)
	CommitSucceededWithinCap(id, paymentID string, amount, captured int64, processedAt time.Time) (bool, error)
}

// WebhookStore is the delivery-state and attempt-log persistence surface.
type WebhookStore interface {
	CreateDelivery(d *models.WebhookDelivery) error
	GetDelivery(id string) (*models.WebhookDelivery, error)
	UpdateDelivery(d *models.WebhookDelivery) error
	AppendAttempt(a *models.WebhookDeliveryAttempt) error
	ListDeliveries(merchantID string, limit, offset int) ([]models.WebhookDelivery, int, error)
	ListAttempts(deliveryID string) ([]models.WebhookDeliveryAttempt, error)
}

// JobQueue is the work queue surface the services enqueue into.
type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
	EnqueueIn(ctx context.Context, job *queue.Job, delay time.Duration) error
	Status(ctx context.Context) (*queue.Status, error)
}
