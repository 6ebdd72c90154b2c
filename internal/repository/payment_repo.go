package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/velopay/gateway_api/internal/models"
)

// PaymentRepository provides access to the payments table.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment row in its initial state.
func (r *PaymentRepository) Create(p *models.Payment) error {
	const q = `
        INSERT INTO payments (
            id, order_id, merchant_id, amount, currency, method, status,
            vpa, card_network, card_last4, decline_code, decline_reason, idempotency_key, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
        )`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(
		p.ID,
		p.OrderID,
		p.MerchantID,
		p.Amount,
		p.Currency,
		p.Method,
		p.Status,
		p.VPA,
		p.CardNetwork,
		p.CardLast4,
		p.DeclineCode,
		p.DeclineReason,
		p.IdempotencyKey,
	)
	return err
}

// GetByID returns a payment by id, or nil when absent.
func (r *PaymentRepository) GetByID(id string) (*models.Payment, error) {
	const q = `SELECT * FROM payments WHERE id = $1`
	var p models.Payment
	if err := r.db.Get(&p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByMerchant returns the merchant's most recent payments.
func (r *PaymentRepository) ListByMerchant(merchantID string, limit int) ([]models.Payment, error) {
	const q = `SELECT * FROM payments WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT $2`
	var payments []models.Payment
	if err := r.db.Select(&payments, q, merchantID, limit); err != nil {
		return nil, err
	}
	return payments, nil
}

// MarkCaptured flags a successful payment as captured. Zero affected rows
// means the payment is not in a capturable state.
func (r *PaymentRepository) MarkCaptured(id string) (bool, error) {
	const q = `
        UPDATE payments SET
            captured = TRUE,
            updated_at = NOW()
        WHERE id = $1 AND status = 'success'`
	res, err := r.db.Exec(q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateStatusFrom moves a payment to a new status only when it still holds
// the expected current status. It reports whether a row changed; zero rows
// means another actor already moved the payment, and the caller must treat
// the transition as aborted rather than failed.
func (r *PaymentRepository) UpdateStatusFrom(id string, from, to models.PaymentStatus, errCode, errDesc *string) (bool, error) {
	const q = `
        UPDATE payments SET
            status = $3,
            error_code = $4,
            error_description = $5,
            updated_at = NOW()
        WHERE id = $1 AND status = $2`
	res, err := r.db.Exec(q, id, from, to, errCode, errDesc)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
