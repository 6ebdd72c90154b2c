package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/velopay/gateway_api/internal/models"
)

// RefundRepository provides access to the refunds table.
type RefundRepository struct {
	db *sqlx.DB
}

// NewRefundRepository creates a new RefundRepository.
func NewRefundRepository(db *sqlx.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create inserts a refund row in its initial state.
func (r *RefundRepository) Create(rf *models.Refund) error {
	const q = `
        INSERT INTO refunds (
            id, payment_id, merchant_id, amount, reason, status, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, NOW(), NOW()
        )`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(
		rf.ID,
		rf.PaymentID,
		rf.MerchantID,
		rf.Amount,
		rf.Reason,
		rf.Status,
	)
	return err
}

// GetByID returns a refund by id, or nil when absent.
func (r *RefundRepository) GetByID(id string) (*models.Refund, error) {
	const q = `SELECT * FROM refunds WHERE id = $1`
	var rf models.Refund
	if err := r.db.Get(&rf, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rf, nil
}

// SumActive returns the total refund amount still counted against a
// payment's captured amount: everything that succeeded plus everything that
// may yet succeed.
func (r *RefundRepository) SumActive(paymentID string) (int64, error) {
	const q = `
        SELECT COALESCE(SUM(amount), 0) FROM refunds
        WHERE payment_id = $1 AND status IN ('pending', 'processing', 'succeeded')`
	var total int64
	if err := r.db.Get(&total, q, paymentID); err != nil {
		return 0, err
	}
	return total, nil
}

// CommitSucceededWithinCap moves a processing refund to succeeded, but only
// while the sum of already-succeeded refunds plus this one stays within the
// payment's captured amount. The parent payment row is locked for the
// duration of the transaction so two concurrent commits against the same
// payment serialize: the second one re-sums after the first has committed and
// sees its row. A false return means the remaining headroom was consumed by
// a concurrently committed refund and this one lost the race.
func (r *RefundRepository) CommitSucceededWithinCap(id, paymentID string, amount, captured int64, processedAt time.Time) (bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	const lockQ = `SELECT id FROM payments WHERE id = $1 FOR UPDATE`
	var lockedID string
	if err := tx.Get(&lockedID, lockQ, paymentID); err != nil {
		return false, err
	}

	const sumQ = `
        SELECT COALESCE(SUM(amount), 0) FROM refunds
        WHERE payment_id = $1 AND status = 'succeeded'`
	var succeeded int64
	if err := tx.Get(&succeeded, sumQ, paymentID); err != nil {
		return false, err
	}
	if succeeded+amount > captured {
		return false, nil
	}

	const updateQ = `
        UPDATE refunds SET
            status = 'succeeded',
            processed_at = $2,
            updated_at = NOW()
        WHERE id = $1 AND status = 'processing'`
	res, err := tx.Exec(updateQ, id, processedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}
	return true, tx.Commit()
}

// UpdateStatusFrom moves a refund to a new status only when it still holds
// the expected current status. Zero affected rows means the transition was
// already taken by another actor.
func (r *RefundRepository) UpdateStatusFrom(id string, from, to models.RefundStatus, errCode *string, processedAt *time.Time) (bool, error) {
	const q = `
        UPDATE refunds SET
            status = $3,
            error_code = $4,
            processed_at = $5,
            updated_at = NOW()
        WHERE id = $1 AND status = $2`
	res, err := r.db.Exec(q, id, from, to, errCode, processedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
