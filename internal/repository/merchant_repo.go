package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/velopay/gateway_api/internal/models"
)

// MerchantRepository provides access to the merchants table.
type MerchantRepository struct {
	db *sqlx.DB
}

// NewMerchantRepository creates a new MerchantRepository.
func NewMerchantRepository(db *sqlx.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// Create inserts a merchant row.
func (r *MerchantRepository) Create(m *models.Merchant) error {
	const q = `
        INSERT INTO merchants (
            id, name, email, api_key, api_secret_hash, webhook_url, webhook_secret, is_active, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
        )`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(
		m.ID,
		m.Name,
		m.Email,
		m.APIKey,
		m.APISecretHash,
		m.WebhookURL,
		m.WebhookSecret,
		m.IsActive,
	)
	return err
}

// GetByID returns a merchant by primary key, or nil when absent.
func (r *MerchantRepository) GetByID(id string) (*models.Merchant, error) {
	const q = `SELECT * FROM merchants WHERE id = $1`
	var m models.Merchant
	if err := r.db.Get(&m, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetByAPIKey returns a merchant by API key, or nil when absent.
func (r *MerchantRepository) GetByAPIKey(apiKey string) (*models.Merchant, error) {
	const q = `SELECT * FROM merchants WHERE api_key = $1`
	var m models.Merchant
	if err := r.db.Get(&m, q, apiKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetByEmail returns a merchant by email, or nil when absent.
func (r *MerchantRepository) GetByEmail(email string) (*models.Merchant, error) {
	const q = `SELECT * FROM merchants WHERE email = $1`
	var m models.Merchant
	if err := r.db.Get(&m, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// UpdateWebhookURL sets the merchant's webhook endpoint.
func (r *MerchantRepository) UpdateWebhookURL(id string, url *string) error {
	const q = `UPDATE merchants SET webhook_url = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(q, id, url)
	return err
}

// UpdateWebhookSecret rotates the merchant's webhook signing secret.
func (r *MerchantRepository) UpdateWebhookSecret(id, secret string) error {
	const q = `UPDATE merchants SET webhook_secret = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(q, id, secret)
	return err
}
