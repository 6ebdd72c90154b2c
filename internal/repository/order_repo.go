package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/velopay/gateway_api/internal/models"
)

// OrderRepository provides access to the orders table.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order row.
func (r *OrderRepository) Create(o *models.Order) error {
	const q = `
        INSERT INTO orders (
            id, merchant_id, amount, currency, receipt, notes, status, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
        )`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(
		o.ID,
		o.MerchantID,
		o.Amount,
		o.Currency,
		o.Receipt,
		o.Notes,
		o.Status,
	)
	return err
}

// GetByID returns an order by id, or nil when absent.
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	const q = `SELECT * FROM orders WHERE id = $1`
	var o models.Order
	if err := r.db.Get(&o, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
