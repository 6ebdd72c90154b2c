package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/config"
	"github.com/velopay/gateway_api/internal/metrics"
	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/queue"
	"github.com/velopay/gateway_api/internal/utils"
)

// WebhookService signs, sends and retries outbound event notifications to
// merchant endpoints, and owns the append-only delivery log.
type WebhookService struct {
	merchantStore MerchantStore
	webhookStore  WebhookStore
	jobs          JobQueue
	httpClient    *http.Client
	cfg           config.WebhookConfig
}

// NewWebhookService constructs a WebhookService with its own HTTP client.
func NewWebhookService(merchantStore MerchantStore, webhookStore WebhookStore, jobs JobQueue, cfg config.WebhookConfig) *WebhookService {
	return &WebhookService{
		merchantStore: merchantStore,
		webhookStore:  webhookStore,
		jobs:          jobs,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
	}
}

// eventEnvelope is the canonical webhook payload. Marshaled compact; the
// signature is computed over these exact bytes.
type eventEnvelope struct {
	Event     string    `json:"event"`
	Timestamp int64     `json:"timestamp"`
	Data      eventData `json:"data"`
}

type eventData struct {
	Payment *models.Payment `json:"payment,omitempty"`
	Refund  *models.Refund  `json:"refund,omitempty"`
}

// BuildPaymentEvent constructs the canonical payload for a payment event.
func BuildPaymentEvent(event string, p *models.Payment) (json.RawMessage, error) {
	return json.Marshal(eventEnvelope{
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      eventData{Payment: p},
	})
}

// BuildRefundEvent constructs the canonical payload for a refund event.
func BuildRefundEvent(event string, rf *models.Refund) (json.RawMessage, error) {
	return json.Marshal(eventEnvelope{
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      eventData{Refund: rf},
	})
}

// Dispatch records a pending delivery for the event and enqueues its first
// attempt. Merchants without a configured endpoint are skipped silently.
func (s *WebhookService) Dispatch(ctx context.Context, merchantID, event string, payload json.RawMessage) error {
	merchant, err := s.merchantStore.GetByID(merchantID)
	if err != nil {
		return err
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		return nil
	}

	now := time.Now().UTC()
	delivery := &models.WebhookDelivery{
		ID:          uuid.New().String(),
		MerchantID:  merchantID,
		Event:       event,
		Payload:     payload,
		Status:      models.WebhookPending,
		Attempts:    0,
		NextRetryAt: &now,
	}
	if err := s.webhookStore.CreateDelivery(delivery); err != nil {
		return err
	}

	return s.jobs.Enqueue(ctx, queue.NewJob(queue.JobDeliverWebhook, delivery.ID))
}

// Deliver performs one delivery attempt for the identified delivery: sign the
// stored payload, POST it, append an attempt row, and either finish the
// sequence or schedule the next try. Re-claims for already-terminal
// deliveries are silent no-ops.
func (s *WebhookService) Deliver(ctx context.Context, deliveryID string) error {
	delivery, err := s.webhookStore.GetDelivery(deliveryID)
	if err != nil {
		return err
	}
	if delivery == nil || delivery.Status != models.WebhookPending {
		return nil
	}

	merchant, err := s.merchantStore.GetByID(delivery.MerchantID)
	if err != nil {
		return err
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" || merchant.WebhookSecret == "" {
		return s.abandon(delivery, "merchant webhook configuration missing")
	}

	payload := []byte(delivery.Payload)
	signature := utils.GenerateSignature(payload, merchant.WebhookSecret)

	attemptNo := delivery.Attempts + 1
	now := time.Now().UTC()
	delivery.Attempts = attemptNo
	delivery.LastAttemptAt = &now

	statusCode, responseBody, delivered := s.post(ctx, *merchant.WebhookURL, delivery.Event, payload, signature)

	var retryIn *time.Duration

	attempt := &models.WebhookDeliveryAttempt{
		DeliveryID:   delivery.ID,
		AttemptNo:    attemptNo,
		Signature:    signature,
		HTTPStatus:   statusCode,
		ResponseBody: responseBody,
	}
	if err := s.webhookStore.AppendAttempt(attempt); err != nil {
		log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("Failed to append delivery attempt")
	}

	switch {
	case delivered:
		delivery.Status = models.WebhookDelivered
		delivery.NextRetryAt = nil
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()

	case attemptNo >= s.cfg.MaxAttempts:
		delivery.Status = models.WebhookExhausted
		delivery.NextRetryAt = nil
		metrics.WebhookDeliveries.WithLabelValues("exhausted").Inc()
		log.Error().
			Str("delivery_id", delivery.ID).
			Str("event", delivery.Event).
			Int("attempts", attemptNo).
			Msg("Webhook delivery exhausted, manual retry required")

	default:
		delay := s.cfg.RetrySchedule[attemptNo-1]
		next := now.Add(delay)
		delivery.NextRetryAt = &next
		retryIn = &delay
		metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
	}

	// Persist the incremented attempt count before scheduling the retry: if
	// the enqueue fails the nack-driven redelivery must not reuse this
	// attempt number.
	if err := s.webhookStore.UpdateDelivery(delivery); err != nil {
		return err
	}
	if retryIn != nil {
		return s.jobs.EnqueueIn(ctx, queue.NewJob(queue.JobDeliverWebhook, delivery.ID), *retryIn)
	}
	return nil
}

// ManualRetry re-enters the delivery pipeline with a fresh attempt sequence.
// It is an operator override: the prior sequence's count does not carry over.
func (s *WebhookService) ManualRetry(ctx context.Context, merchantID, deliveryID string) (*models.WebhookDelivery, error) {
	delivery, err := s.webhookStore.GetDelivery(deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery == nil || delivery.MerchantID != merchantID {
		return nil, utils.ErrWebhookNotFound
	}
	if delivery.Status == models.WebhookPending {
		// Still queued or mid-flight; a second pipeline entry would race the
		// first one's attempt numbering.
		return nil, utils.ErrInvalidTransition
	}

	now := time.Now().UTC()
	delivery.Status = models.WebhookPending
	delivery.Attempts = 0
	delivery.NextRetryAt = &now
	if err := s.webhookStore.UpdateDelivery(delivery); err != nil {
		return nil, err
	}

	if err := s.jobs.Enqueue(ctx, queue.NewJob(queue.JobDeliverWebhook, delivery.ID)); err != nil {
		return nil, err
	}
	return delivery, nil
}

// SendTest pushes a synthetic payment.success event through the normal
// delivery pipeline so a merchant can verify their endpoint and signature
// handling before going live.
func (s *WebhookService) SendTest(ctx context.Context, merchant *models.Merchant) error {
	if merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		return utils.ErrWebhookConfigMissing
	}

	payload, err := BuildPaymentEvent(models.EventPaymentSuccess, &models.Payment{
		ID:       "pay_test",
		Status:   models.PaymentSuccess,
		Amount:   100,
		Currency: "INR",
	})
	if err != nil {
		return err
	}
	return s.Dispatch(ctx, merchant.ID, models.EventPaymentSuccess, payload)
}

// ListDeliveries returns a page of the merchant's delivery log, most recent
// attempt first.
func (s *WebhookService) ListDeliveries(merchantID string, limit, offset int) ([]models.WebhookDelivery, int, error) {
	return s.webhookStore.ListDeliveries(merchantID, limit, offset)
}

// ListAttempts returns the attempt log for one delivery.
func (s *WebhookService) ListAttempts(merchantID, deliveryID string) ([]models.WebhookDeliveryAttempt, error) {
	delivery, err := s.webhookStore.GetDelivery(deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery == nil || delivery.MerchantID != merchantID {
		return nil, utils.ErrWebhookNotFound
	}
	return s.webhookStore.ListAttempts(deliveryID)
}

// QueueStatus returns aggregate work queue counts.
func (s *WebhookService) QueueStatus(ctx context.Context) (*queue.Status, error) {
	return s.jobs.Status(ctx)
}

// post sends the signed payload and reports the HTTP outcome. A transport
// error yields a nil status code and the error text as response body.
func (s *WebhookService) post(ctx context.Context, url, event string, payload []byte, signature string) (statusCode *int, responseBody *string, delivered bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		msg := err.Error()
		return nil, &msg, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		msg := truncate(err.Error(), 2000)
		return nil, &msg, false
	}
	defer resp.Body.Close()

	sc := resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
	var bodyStr *string
	if len(body) > 0 {
		s := string(body)
		bodyStr = &s
	}
	return &sc, bodyStr, sc >= 200 && sc <= 299
}

// abandon terminates a delivery whose merchant configuration disappeared.
func (s *WebhookService) abandon(delivery *models.WebhookDelivery, reason string) error {
	now := time.Now().UTC()
	delivery.Status = models.WebhookExhausted
	delivery.Attempts = s.cfg.MaxAttempts
	delivery.NextRetryAt = nil
	delivery.LastAttemptAt = &now
	metrics.WebhookDeliveries.WithLabelValues("exhausted").Inc()
	log.Warn().Str("delivery_id", delivery.ID).Str("reason", reason).Msg("Abandoning webhook delivery")
	return s.webhookStore.UpdateDelivery(delivery)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
