package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/utils"
)

// CreateOrderRequest is the order creation input.
type CreateOrderRequest struct {
	Amount   int64           `json:"amount" binding:"required"`
	Currency string          `json:"currency,omitempty"`
	Receipt  *string         `json:"receipt,omitempty"`
	Notes    json.RawMessage `json:"notes,omitempty"`
}

// OrderService creates and reads the orders payments settle against.
type OrderService struct {
	orderStore OrderStore
}

// NewOrderService constructs an OrderService.
func NewOrderService(orderStore OrderStore) *OrderService {
	return &OrderService{orderStore: orderStore}
}

// Create records a new order. Amounts are in the currency's smallest unit
// and must be at least 100.
func (s *OrderService) Create(merchant *models.Merchant, req *CreateOrderRequest) (*models.Order, error) {
	if req.Amount < 100 {
		return nil, utils.ErrInvalidAmount
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "INR"
	}

	order := &models.Order{
		MerchantID: merchant.ID,
		Amount:     req.Amount,
		Currency:   currency,
		Receipt:    req.Receipt,
		Notes:      req.Notes,
		Status:     "created",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	var err error
	order.ID, err = utils.GenerateEntityID("order")
	if err != nil {
		return nil, err
	}

	if err := s.orderStore.Create(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.ID).
		Int64("amount", order.Amount).
		Str("currency", order.Currency).
		Msg("Order created")

	return order, nil
}

// GetByID returns a merchant's order.
func (s *OrderService) GetByID(merchant *models.Merchant, id string) (*models.Order, error) {
	order, err := s.orderStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if order == nil || order.MerchantID != merchant.ID {
		return nil, utils.ErrOrderNotFound
	}
	return order, nil
}
