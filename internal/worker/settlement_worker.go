package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/metrics"
	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/queue"
	"github.com/velopay/gateway_api/internal/service"
)

// SettlementWorker runs a fixed-size pool of goroutines that claim jobs from
// the queue and drive payments, refunds and webhook deliveries to terminal
// outcomes. Jobs can be delivered more than once; every mutation re-checks
// current entity state first, so a re-claimed job for an already-settled
// entity is a silent no-op.
type SettlementWorker struct {
	jobs         *queue.Queue
	payments     service.PaymentStore
	refunds      service.RefundStore
	settlement   *service.SettlementService
	webhooks     *service.WebhookService
	poolSize     int
	pollInterval time.Duration
}

// NewSettlementWorker constructs a SettlementWorker.
func NewSettlementWorker(
	jobs *queue.Queue,
	payments service.PaymentStore,
	refunds service.RefundStore,
	settlement *service.SettlementService,
	webhooks *service.WebhookService,
	poolSize int,
	pollInterval time.Duration,
) *SettlementWorker {
	return &SettlementWorker{
		jobs:         jobs,
		payments:     payments,
		refunds:      refunds,
		settlement:   settlement,
		webhooks:     webhooks,
		poolSize:     poolSize,
		pollInterval: pollInterval,
	}
}

// Start launches the worker pool and blocks until the context is canceled.
func (w *SettlementWorker) Start(ctx context.Context) {
	log.Info().Int("pool_size", w.poolSize).Msg("Starting settlement workers")

	done := make(chan struct{}, w.poolSize)
	for i := 0; i < w.poolSize; i++ {
		workerID := fmt.Sprintf("settlement-%d", i)
		go func() {
			defer func() { done <- struct{}{} }()
			w.loop(ctx, workerID)
		}()
	}
	for i := 0; i < w.poolSize; i++ {
		<-done
	}
	log.Info().Msg("Settlement workers stopped")
}

func (w *SettlementWorker) loop(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := w.jobs.Claim(ctx, workerID)
		if err != nil {
			log.Error().Err(err).Str("worker_id", workerID).Msg("Failed to claim job")
			w.sleep(ctx)
			continue
		}
		if claimed == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, claimed)
	}
}

// process dispatches one claimed job by kind. A processing fault nacks the
// job so another attempt picks it up; everything else acks.
func (w *SettlementWorker) process(ctx context.Context, claimed *queue.ClaimedJob) {
	job := claimed.Job

	var err error
	switch job.Kind {
	case queue.JobProcessPayment:
		err = w.processPayment(ctx, job.EntityID)
	case queue.JobProcessRefund:
		err = w.processRefund(ctx, job.EntityID)
	case queue.JobDeliverWebhook:
		err = w.webhooks.Deliver(ctx, job.EntityID)
	default:
		log.Error().Str("kind", string(job.Kind)).Msg("Unknown job kind, dropping")
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("kind", string(job.Kind)).
			Str("entity_id", job.EntityID).
			Int("attempts", job.Attempts).
			Msg("Job processing fault")
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), "fault").Inc()
		if nackErr := w.jobs.Nack(ctx, claimed); nackErr != nil {
			log.Error().Err(nackErr).Msg("Failed to nack job")
		}
		return
	}

	metrics.JobsProcessed.WithLabelValues(string(job.Kind), "ok").Inc()
	if ackErr := w.jobs.Ack(ctx, claimed); ackErr != nil {
		log.Error().Err(ackErr).Msg("Failed to ack job")
	}
}

// processPayment drives one payment from pending to a terminal state and
// emits the terminal webhook event.
func (w *SettlementWorker) processPayment(ctx context.Context, paymentID string) error {
	payment, err := w.payments.GetByID(paymentID)
	if err != nil {
		return err
	}
	if payment == nil || payment.Status != models.PaymentPending {
		// Already claimed or settled elsewhere; at-least-once delivery makes
		// this normal.
		return nil
	}

	moved, err := w.payments.UpdateStatusFrom(payment.ID, models.PaymentPending, models.PaymentProcessing, nil, nil)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	success, errCode, errDesc := w.settlement.SettlePayment(ctx, payment)

	target := models.PaymentSuccess
	event := models.EventPaymentSuccess
	if !success {
		target = models.PaymentFailed
		event = models.EventPaymentFailed
	}

	moved, err = w.payments.UpdateStatusFrom(payment.ID, models.PaymentProcessing, target, errCode, errDesc)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	metrics.PaymentsSettled.WithLabelValues(string(target)).Inc()
	log.Info().
		Str("payment_id", payment.ID).
		Str("status", string(target)).
		Msg("Payment settled")

	settled, err := w.payments.GetByID(payment.ID)
	if err != nil || settled == nil {
		return err
	}
	payload, err := service.BuildPaymentEvent(event, settled)
	if err != nil {
		return err
	}
	return w.webhooks.Dispatch(ctx, settled.MerchantID, event, payload)
}

// processRefund drives one refund from pending to a terminal state,
// re-validating the refundable headroom at commit time so a race between two
// concurrent refunds cannot overdraw the captured amount.
func (w *SettlementWorker) processRefund(ctx context.Context, refundID string) error {
	refund, err := w.refunds.GetByID(refundID)
	if err != nil {
		return err
	}
	if refund == nil || refund.Status != models.RefundPending {
		return nil
	}

	payment, err := w.payments.GetByID(refund.PaymentID)
	if err != nil {
		return err
	}

	moved, err := w.refunds.UpdateStatusFrom(refund.ID, models.RefundPending, models.RefundProcessing, nil, nil)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	now := time.Now().UTC()
	if payment == nil || payment.Status != models.PaymentSuccess {
		code := "PAYMENT_NOT_REFUNDABLE"
		_, err := w.refunds.UpdateStatusFrom(refund.ID, models.RefundProcessing, models.RefundFailed, &code, &now)
		return err
	}

	w.settlement.WaitRefund(ctx)

	now = time.Now().UTC()
	committed, err := w.refunds.CommitSucceededWithinCap(refund.ID, payment.ID, refund.Amount, payment.Amount, now)
	if err != nil {
		return err
	}

	event := models.EventRefundSucceeded
	if !committed {
		// Lost the headroom race to a concurrently committed refund.
		code := "REFUND_EXCEEDS_CAPTURED_AMOUNT"
		moved, err := w.refunds.UpdateStatusFrom(refund.ID, models.RefundProcessing, models.RefundFailed, &code, &now)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		event = models.EventRefundFailed
	}

	log.Info().
		Str("refund_id", refund.ID).
		Str("payment_id", refund.PaymentID).
		Str("event", event).
		Msg("Refund processed")

	processed, err := w.refunds.GetByID(refund.ID)
	if err != nil || processed == nil {
		return err
	}
	payload, err := service.BuildRefundEvent(event, processed)
	if err != nil {
		return err
	}
	return w.webhooks.Dispatch(ctx, processed.MerchantID, event, payload)
}

func (w *SettlementWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
