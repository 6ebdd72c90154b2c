package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/velopay/gateway_api/internal/cache"
	"github.com/velopay/gateway_api/internal/config"
	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/queue"
	"github.com/velopay/gateway_api/internal/utils"
)

type receivedRequest struct {
	body      []byte
	signature string
	event     string
}

// webhookReceiver is a controllable merchant endpoint. Status defaults to
// 200; set failures to make the first N requests return 500.
type webhookReceiver struct {
	mu       sync.Mutex
	requests []receivedRequest
	failures int

	srv *httptest.Server
}

func newWebhookReceiver(t *testing.T) *webhookReceiver {
	t.Helper()
	r := &webhookReceiver{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, receivedRequest{
			body:      body,
			signature: req.Header.Get("X-Webhook-Signature"),
			event:     req.Header.Get("X-Webhook-Event"),
		})
		fail := r.failures > 0
		if fail {
			r.failures--
		}
		r.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *webhookReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *webhookReceiver) request(i int) receivedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

type webhookFixture struct {
	merchants *fakeMerchantStore
	store     *fakeWebhookStore
	jobs      *queue.Queue
	svc       *WebhookService
	receiver  *webhookReceiver
	merchant  *models.Merchant
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	mr := miniredis.RunT(t)

	f := &webhookFixture{
		merchants: newFakeMerchantStore(),
		store:     newFakeWebhookStore(),
		jobs:      queue.New(cache.NewRedisClientFromAddr(mr.Addr()), "test_jobs", 5),
		receiver:  newWebhookReceiver(t),
	}
	f.svc = NewWebhookService(f.merchants, f.store, f.jobs, config.WebhookConfig{
		MaxAttempts:   5,
		Timeout:       time.Second,
		RetrySchedule: config.FastRetrySchedule,
	})

	url := f.receiver.srv.URL
	f.merchant = &models.Merchant{
		ID:            "mch_test0000000001",
		WebhookURL:    &url,
		WebhookSecret: "whsec_test_abc123",
		IsActive:      true,
	}
	require.NoError(t, f.merchants.Create(f.merchant))
	return f
}

// dispatch creates a delivery and returns its id by reading it back from the
// store.
func (f *webhookFixture) dispatch(t *testing.T, event string) string {
	t.Helper()
	payload, err := BuildPaymentEvent(event, &models.Payment{
		ID:     "pay_test0000000001",
		Status: models.PaymentSuccess,
		Amount: 50000,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Dispatch(context.Background(), f.merchant.ID, event, payload))

	deliveries, _, err := f.store.ListDeliveries(f.merchant.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	return deliveries[0].ID
}

func TestDispatchSkipsUnconfiguredMerchant(t *testing.T) {
	f := newWebhookFixture(t)

	bare := &models.Merchant{ID: "mch_nohook00000001", IsActive: true}
	require.NoError(t, f.merchants.Create(bare))

	payload, err := BuildPaymentEvent(models.EventPaymentSuccess, &models.Payment{ID: "pay_x"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Dispatch(context.Background(), bare.ID, models.EventPaymentSuccess, payload))

	_, total, err := f.store.ListDeliveries(bare.ID, 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestDeliverSuccess(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	id := f.dispatch(t, models.EventPaymentSuccess)
	require.NoError(t, f.svc.Deliver(ctx, id))

	delivery, err := f.store.GetDelivery(id)
	require.NoError(t, err)
	require.Equal(t, models.WebhookDelivered, delivery.Status)
	require.Equal(t, 1, delivery.Attempts)
	require.Nil(t, delivery.NextRetryAt)

	require.Equal(t, 1, f.receiver.count())
	got := f.receiver.request(0)
	require.Equal(t, models.EventPaymentSuccess, got.event)
	require.True(t, utils.VerifySignature(got.body, got.signature, f.merchant.WebhookSecret))

	var envelope struct {
		Event     string `json:"event"`
		Timestamp int64  `json:"timestamp"`
		Data      struct {
			Payment *models.Payment `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &envelope))
	require.Equal(t, models.EventPaymentSuccess, envelope.Event)
	require.NotZero(t, envelope.Timestamp)
	require.Equal(t, "pay_test0000000001", envelope.Data.Payment.ID)
}

func TestDeliverFailureSchedulesRetry(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	f.receiver.failures = 1

	id := f.dispatch(t, models.EventPaymentSuccess)
	before := time.Now()
	require.NoError(t, f.svc.Deliver(ctx, id))

	delivery, err := f.store.GetDelivery(id)
	require.NoError(t, err)
	require.Equal(t, models.WebhookPending, delivery.Status)
	require.Equal(t, 1, delivery.Attempts)
	require.NotNil(t, delivery.NextRetryAt)
	require.True(t, delivery.NextRetryAt.After(before))

	attempts, err := f.store.ListAttempts(id)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, 1, attempts[0].AttemptNo)
	require.Equal(t, http.StatusInternalServerError, *attempts[0].HTTPStatus)

	// The retry waits in the scheduled set until due.
	status, err := f.jobs.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), status.Scheduled)
}

func TestDeliverExhaustsAfterMaxAttempts(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	f.receiver.failures = 100

	id := f.dispatch(t, models.EventPaymentFailed)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.Deliver(ctx, id))
	}

	delivery, err := f.store.GetDelivery(id)
	require.NoError(t, err)
	require.Equal(t, models.WebhookExhausted, delivery.Status)
	require.Equal(t, 5, delivery.Attempts)
	require.Nil(t, delivery.NextRetryAt)

	// Exhaustion is terminal without operator action.
	require.NoError(t, f.svc.Deliver(ctx, id))
	require.Equal(t, 5, f.receiver.count())

	attempts, err := f.store.ListAttempts(id)
	require.NoError(t, err)
	require.Len(t, attempts, 5)
	for i, a := range attempts {
		require.Equal(t, i+1, a.AttemptNo)
	}
}

func TestDeliverOnDeliveredIsNoOp(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	id := f.dispatch(t, models.EventPaymentSuccess)
	require.NoError(t, f.svc.Deliver(ctx, id))
	require.NoError(t, f.svc.Deliver(ctx, id))

	require.Equal(t, 1, f.receiver.count())
	attempts, err := f.store.ListAttempts(id)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestDeliverAbandonsWhenConfigRemoved(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	id := f.dispatch(t, models.EventPaymentSuccess)
	require.NoError(t, f.merchants.UpdateWebhookURL(f.merchant.ID, nil))

	require.NoError(t, f.svc.Deliver(ctx, id))

	delivery, err := f.store.GetDelivery(id)
	require.NoError(t, err)
	require.Equal(t, models.WebhookExhausted, delivery.Status)
	require.Zero(t, f.receiver.count())
}

func TestManualRetryResetsSequence(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	f.receiver.failures = 100

	id := f.dispatch(t, models.EventPaymentFailed)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.Deliver(ctx, id))
	}

	f.receiver.mu.Lock()
	f.receiver.failures = 0
	f.receiver.mu.Unlock()

	delivery, err := f.svc.ManualRetry(ctx, f.merchant.ID, id)
	require.NoError(t, err)
	require.Equal(t, models.WebhookPending, delivery.Status)
	require.Zero(t, delivery.Attempts)

	require.NoError(t, f.svc.Deliver(ctx, id))

	delivery, err = f.store.GetDelivery(id)
	require.NoError(t, err)
	require.Equal(t, models.WebhookDelivered, delivery.Status)
	require.Equal(t, 1, delivery.Attempts)

	// The attempt log keeps the full history across both sequences.
	attempts, err := f.store.ListAttempts(id)
	require.NoError(t, err)
	require.Len(t, attempts, 6)
}

// flakyJobQueue fails retry scheduling while leaving the rest of the queue
// surface intact.
type flakyJobQueue struct {
	*queue.Queue
	enqueueInErr error
}

func (q *flakyJobQueue) EnqueueIn(ctx context.Context, job *queue.Job, delay time.Duration) error {
	if q.enqueueInErr != nil {
		return q.enqueueInErr
	}
	return q.Queue.EnqueueIn(ctx, job, delay)
}

func TestDeliverPersistsAttemptCountWhenRetryEnqueueFails(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	f.receiver.failures = 100

	enqueueErr := errors.New("redis gone")
	svc := NewWebhookService(f.merchants, f.store, &flakyJobQueue{Queue: f.jobs, enqueueInErr: enqueueErr}, config.WebhookConfig{
		MaxAttempts:   5,
		Timeout:       time.Second,
		RetrySchedule: config.FastRetrySchedule,
	})

	id := f.dispatch(t, models.EventPaymentFailed)
	require.ErrorIs(t, svc.Deliver(ctx, id), enqueueErr)

	// The attempt count must survive the enqueue failure so the job's
	// nack-driven redelivery continues the sequence instead of repeating
	// attempt number one.
	delivery, err := f.store.GetDelivery(id)
	require.NoError(t, err)
	require.Equal(t, 1, delivery.Attempts)

	require.ErrorIs(t, svc.Deliver(ctx, id), enqueueErr)

	attempts, err := f.store.ListAttempts(id)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, 1, attempts[0].AttemptNo)
	require.Equal(t, 2, attempts[1].AttemptNo)
}

func TestManualRetryRejectedWhilePending(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	id := f.dispatch(t, models.EventPaymentSuccess)

	_, err := f.svc.ManualRetry(ctx, f.merchant.ID, id)
	require.ErrorIs(t, err, utils.ErrInvalidTransition)
}

func TestSendTestDeliversSyntheticEvent(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendTest(ctx, f.merchant))

	deliveries, _, err := f.store.ListDeliveries(f.merchant.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, models.EventPaymentSuccess, deliveries[0].Event)

	require.NoError(t, f.svc.Deliver(ctx, deliveries[0].ID))
	require.Equal(t, 1, f.receiver.count())
	got := f.receiver.request(0)
	require.True(t, utils.VerifySignature(got.body, got.signature, f.merchant.WebhookSecret))
}

func TestSendTestRequiresConfiguredURL(t *testing.T) {
	f := newWebhookFixture(t)

	bare := &models.Merchant{ID: "mch_nohook00000001", IsActive: true}
	require.NoError(t, f.merchants.Create(bare))

	err := f.svc.SendTest(context.Background(), bare)
	require.ErrorIs(t, err, utils.ErrWebhookConfigMissing)
}

func TestManualRetryScopedToMerchant(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	id := f.dispatch(t, models.EventPaymentSuccess)

	_, err := f.svc.ManualRetry(ctx, "mch_other000000001", id)
	require.ErrorIs(t, err, utils.ErrWebhookNotFound)

	_, err = f.svc.ManualRetry(ctx, f.merchant.ID, "whd_missing")
	require.ErrorIs(t, err, utils.ErrWebhookNotFound)
}

func TestRetryScheduleDelaysAreNonDecreasing(t *testing.T) {
	for _, schedule := range [][]time.Duration{config.DefaultRetrySchedule, config.FastRetrySchedule} {
		require.Len(t, schedule, 5)
		for i := 1; i < len(schedule); i++ {
			require.GreaterOrEqual(t, schedule[i], schedule[i-1])
		}
	}
}
