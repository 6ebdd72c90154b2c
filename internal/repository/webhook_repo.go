package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/velopay/gateway_api/internal/models"
)

// WebhookRepository provides access to webhook delivery state and the
// append-only attempt log.
type WebhookRepository struct {
	db *sqlx.DB
}

// NewWebhookRepository creates a new WebhookRepository.
func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// CreateDelivery inserts a delivery row for a new outbound event.
func (r *WebhookRepository) CreateDelivery(d *models.WebhookDelivery) error {
	const q = `
        INSERT INTO webhook_deliveries (
            id, merchant_id, event, payload, status, attempts, next_retry_at, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
        )`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(
		d.ID,
		d.MerchantID,
		d.Event,
		d.Payload,
		d.Status,
		d.Attempts,
		d.NextRetryAt,
	)
	return err
}

// GetDelivery returns a delivery by id, or nil when absent.
func (r *WebhookRepository) GetDelivery(id string) (*models.WebhookDelivery, error) {
	const q = `SELECT * FROM webhook_deliveries WHERE id = $1`
	var d models.WebhookDelivery
	if err := r.db.Get(&d, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// UpdateDelivery persists the delivery's sequence state after an attempt or
// a manual reset.
func (r *WebhookRepository) UpdateDelivery(d *models.WebhookDelivery) error {
	const q = `
        UPDATE webhook_deliveries SET
            status = $2,
            attempts = $3,
            next_retry_at = $4,
            last_attempt_at = $5,
            updated_at = NOW()
        WHERE id = $1`
	_, err := r.db.Exec(q, d.ID, d.Status, d.Attempts, d.NextRetryAt, d.LastAttemptAt)
	return err
}

// AppendAttempt writes one immutable attempt log row.
func (r *WebhookRepository) AppendAttempt(a *models.WebhookDeliveryAttempt) error {
	const q = `
        INSERT INTO webhook_delivery_attempts (
            delivery_id, attempt_no, signature, http_status, response_body, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, NOW()
        )`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(
		a.DeliveryID,
		a.AttemptNo,
		a.Signature,
		a.HTTPStatus,
		a.ResponseBody,
	)
	return err
}

// ListDeliveries returns a page of the merchant's deliveries ordered by most
// recent attempt first, together with the total row count.
func (r *WebhookRepository) ListDeliveries(merchantID string, limit, offset int) ([]models.WebhookDelivery, int, error) {
	const countQ = `SELECT COUNT(*) FROM webhook_deliveries WHERE merchant_id = $1`
	var total int
	if err := r.db.Get(&total, countQ, merchantID); err != nil {
		return nil, 0, err
	}

	const q = `
        SELECT * FROM webhook_deliveries
        WHERE merchant_id = $1
        ORDER BY COALESCE(last_attempt_at, created_at) DESC
        LIMIT $2 OFFSET $3`
	var deliveries []models.WebhookDelivery
	if err := r.db.Select(&deliveries, q, merchantID, limit, offset); err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// ListAttempts returns the append-only attempt log for one delivery, oldest
// first.
func (r *WebhookRepository) ListAttempts(deliveryID string) ([]models.WebhookDeliveryAttempt, error) {
	const q = `SELECT * FROM webhook_delivery_attempts WHERE delivery_id = $1 ORDER BY id ASC`
	var attempts []models.WebhookDeliveryAttempt
	if err := r.db.Select(&attempts, q, deliveryID); err != nil {
		return nil, err
	}
	return attempts, nil
}
