package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/queue"
	"github.com/velopay/gateway_api/internal/utils"
)

// CreateRefundRequest is the refund creation input.
type CreateRefundRequest struct {
	Amount int64   `json:"amount" binding:"required"`
	Reason *string `json:"reason,omitempty"`
}

// RefundService accepts refund instructions against successful payments and
// hands processing to the worker pool.
type RefundService struct {
	paymentStore PaymentStore
	refundStore  RefundStore
	webhooks     *WebhookService
	jobs         JobQueue
}

// NewRefundService constructs a RefundService.
func NewRefundService(paymentStore PaymentStore, refundStore RefundStore, webhooks *WebhookService, jobs JobQueue) *RefundService {
	return &RefundService{
		paymentStore: paymentStore,
		refundStore:  refundStore,
		webhooks:     webhooks,
		jobs:         jobs,
	}
}

// Create accepts a refund against a successful payment. The refundable
// headroom check here rejects obvious violations synchronously; the worker
// re-validates it before committing, which catches concurrent racers.
func (s *RefundService) Create(ctx context.Context, merchant *models.Merchant, paymentID string, req *CreateRefundRequest) (*models.Refund, error) {
	payment, err := s.paymentStore.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.MerchantID != merchant.ID {
		return nil, utils.ErrPaymentNotFound
	}
	if payment.Status != models.PaymentSuccess {
		return nil, utils.ErrPaymentNotRefundable
	}
	if req.Amount <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	refunded, err := s.refundStore.SumActive(payment.ID)
	if err != nil {
		return nil, err
	}
	if req.Amount > payment.Amount-refunded {
		return nil, utils.ErrRefundExceedsCaptured
	}

	refund := &models.Refund{
		PaymentID:  payment.ID,
		MerchantID: merchant.ID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		Status:     models.RefundPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	refund.ID, err = utils.GenerateEntityID("rfnd")
	if err != nil {
		return nil, err
	}

	if err := s.refundStore.Create(refund); err != nil {
		return nil, err
	}

	if err := s.jobs.Enqueue(ctx, queue.NewJob(queue.JobProcessRefund, refund.ID)); err != nil {
		return nil, err
	}

	s.emit(ctx, refund, models.EventRefundCreated)

	log.Info().
		Str("refund_id", refund.ID).
		Str("payment_id", payment.ID).
		Int64("amount", refund.Amount).
		Msg("Refund accepted")

	return refund, nil
}

// GetByID returns a merchant's refund.
func (s *RefundService) GetByID(merchant *models.Merchant, id string) (*models.Refund, error) {
	refund, err := s.refundStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if refund == nil || refund.MerchantID != merchant.ID {
		return nil, utils.ErrRefundNotFound
	}
	return refund, nil
}

func (s *RefundService) emit(ctx context.Context, refund *models.Refund, event string) {
	payload, err := BuildRefundEvent(event, refund)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to build webhook payload")
		return
	}
	if err := s.webhooks.Dispatch(ctx, refund.MerchantID, event, payload); err != nil {
		log.Error().Err(err).Str("event", event).Str("refund_id", refund.ID).Msg("Failed to dispatch webhook")
	}
}
