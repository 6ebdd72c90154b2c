package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/cache"
	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/queue"
	"github.com/velopay/gateway_api/internal/utils"
)

// CardDetails carries raw card input. Only the network and last four digits
// are persisted.
type CardDetails struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
}

// CreatePaymentRequest is the payment creation input.
type CreatePaymentRequest struct {
	OrderID string       `json:"order_id" binding:"required"`
	Method  string       `json:"method" binding:"required"`
	VPA     string       `json:"vpa,omitempty"`
	Card    *CardDetails `json:"card,omitempty"`
}

// PaymentService accepts payment instructions, records them pending, and
// hands settlement to the worker pool through the queue.
type PaymentService struct {
	orderStore   OrderStore
	paymentStore PaymentStore
	settlement   *SettlementService
	webhooks     *WebhookService
	jobs         JobQueue
	idempotency  *cache.IdempotencyCache
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(
	orderStore OrderStore,
	paymentStore PaymentStore,
	settlement *SettlementService,
	webhooks *WebhookService,
	jobs JobQueue,
	idempotency *cache.IdempotencyCache,
) *PaymentService {
	return &PaymentService{
		orderStore:   orderStore,
		paymentStore: paymentStore,
		settlement:   settlement,
		webhooks:     webhooks,
		jobs:         jobs,
		idempotency:  idempotency,
	}
}

// Create accepts a payment instruction. The synchronous response always shows
// the pending state; settlement happens asynchronously. When an idempotency
// key is supplied, repeated submissions replay the recorded response and
// concurrent duplicates collapse onto a single creation.
func (s *PaymentService) Create(ctx context.Context, merchant *models.Merchant, req *CreatePaymentRequest, idempotencyKey string) (json.RawMessage, error) {
	if idempotencyKey == "" {
		_, response, err := s.create(ctx, merchant, req, nil)
		return response, err
	}

	fingerprint := Fingerprint(req)
	record, replayed, err := s.idempotency.CheckOrRecord(ctx, merchant.ID, idempotencyKey, fingerprint,
		func(ctx context.Context) (string, json.RawMessage, error) {
			return s.create(ctx, merchant, req, &idempotencyKey)
		})
	if err != nil {
		return nil, err
	}
	if replayed {
		log.Debug().
			Str("merchant_id", merchant.ID).
			Str("payment_id", record.ResourceID).
			Msg("Idempotent payment creation replayed")
	}
	return record.Response, nil
}

// create performs the actual payment creation: validate the instrument,
// persist the pending record, enqueue settlement, and emit created/pending
// events.
func (s *PaymentService) create(ctx context.Context, merchant *models.Merchant, req *CreatePaymentRequest, idempotencyKey *string) (string, json.RawMessage, error) {
	order, err := s.orderStore.GetByID(req.OrderID)
	if err != nil {
		return "", nil, err
	}
	if order == nil || order.MerchantID != merchant.ID {
		return "", nil, utils.ErrOrderNotFound
	}

	method := models.PaymentMethod(strings.ToLower(req.Method))
	if method != models.MethodUPI && method != models.MethodCard {
		return "", nil, utils.ErrInvalidMethod
	}

	payment := &models.Payment{
		OrderID:        order.ID,
		MerchantID:     merchant.ID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		Method:         method,
		Status:         models.PaymentPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	switch method {
	case models.MethodUPI:
		if req.VPA == "" || !ValidVPA(req.VPA) {
			return "", nil, utils.ErrInvalidVPA
		}
		vpa := req.VPA
		payment.VPA = &vpa
		if decline := s.settlement.EvaluateUPI(vpa); decline != nil {
			payment.DeclineCode = &decline.Code
			payment.DeclineReason = &decline.Reason
		}

	case models.MethodCard:
		if req.Card == nil || req.Card.Number == "" {
			return "", nil, utils.ErrInvalidCard
		}
		network := DetectCardNetwork(req.Card.Number)
		last4 := CardLast4(req.Card.Number)
		payment.CardNetwork = &network
		payment.CardLast4 = &last4
		if decline := s.settlement.EvaluateCard(req.Card.Number, req.Card.ExpiryMonth, req.Card.ExpiryYear); decline != nil {
			payment.DeclineCode = &decline.Code
			payment.DeclineReason = &decline.Reason
		}
	}

	payment.ID, err = utils.GenerateEntityID("pay")
	if err != nil {
		return "", nil, err
	}

	if err := s.paymentStore.Create(payment); err != nil {
		return "", nil, err
	}

	if err := s.jobs.Enqueue(ctx, queue.NewJob(queue.JobProcessPayment, payment.ID)); err != nil {
		// The pending record stays behind for reconciliation once the queue
		// recovers; the caller sees the infrastructure failure.
		return "", nil, err
	}

	s.emit(ctx, payment, models.EventPaymentCreated)
	s.emit(ctx, payment, models.EventPaymentPending)

	response, err := json.Marshal(payment)
	if err != nil {
		return "", nil, err
	}

	log.Info().
		Str("payment_id", payment.ID).
		Str("order_id", payment.OrderID).
		Str("method", string(method)).
		Int64("amount", payment.Amount).
		Msg("Payment accepted")

	return payment.ID, response, nil
}

// GetByID returns a merchant's payment.
func (s *PaymentService) GetByID(merchant *models.Merchant, id string) (*models.Payment, error) {
	payment, err := s.paymentStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.MerchantID != merchant.ID {
		return nil, utils.ErrPaymentNotFound
	}
	return payment, nil
}

// Capture flags a successful payment as captured for the full settled
// amount. The amount is required to match so a stale client cannot capture a
// payment it mispriced.
func (s *PaymentService) Capture(merchant *models.Merchant, id string, amount int64) (*models.Payment, error) {
	payment, err := s.GetByID(merchant, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentSuccess {
		return nil, utils.ErrInvalidTransition
	}
	if amount != payment.Amount {
		return nil, utils.ErrInvalidAmount
	}

	marked, err := s.paymentStore.MarkCaptured(payment.ID)
	if err != nil {
		return nil, err
	}
	if !marked {
		// The row left the success state between the read and the update.
		return nil, utils.ErrInvalidTransition
	}

	log.Info().
		Str("payment_id", payment.ID).
		Int64("amount", amount).
		Msg("Payment captured")

	return s.GetByID(merchant, id)
}

// List returns the merchant's most recent payments.
func (s *PaymentService) List(merchant *models.Merchant, limit int) ([]models.Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	return s.paymentStore.ListByMerchant(merchant.ID, limit)
}

func (s *PaymentService) emit(ctx context.Context, payment *models.Payment, event string) {
	payload, err := BuildPaymentEvent(event, payment)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to build webhook payload")
		return
	}
	if err := s.webhooks.Dispatch(ctx, payment.MerchantID, event, payload); err != nil {
		log.Error().Err(err).Str("event", event).Str("payment_id", payment.ID).Msg("Failed to dispatch webhook")
	}
}

// Fingerprint hashes the normalized request body so idempotency-key reuse
// with a different body is detectable as a conflict.
func Fingerprint(req *CreatePaymentRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
