package service

import (
	"context"
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

type refundFixture struct {
	merchants *fakeMerchantStore
	payments  *fakePaymentStore
	refunds   *fakeRefundStore
	svc       *RefundService

	merchant *models.Merchant
	payment  *models.Payment
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	jobs := queue.New(cache.NewRedisClientFromAddr(mr.Addr()), "test_jobs", 5)

	f := &refundFixture{
		merchants: newFakeMerchantStore(),
		payments:  newFakePaymentStore(),
		refunds:   newFakeRefundStore(),
	}
	webhookSvc := NewWebhookService(f.merchants, newFakeWebhookStore(), jobs, config.WebhookConfig{
		MaxAttempts:   5,
		Timeout:       time.Second,
		RetrySchedule: config.FastRetrySchedule,
	})
	f.svc = NewRefundService(f.payments, f.refunds, webhookSvc, jobs)

	f.merchant = &models.Merchant{ID: "mch_test0000000001", IsActive: true}
	require.NoError(t, f.merchants.Create(f.merchant))

	f.payment = &models.Payment{
		ID:         "pay_test0000000001",
		OrderID:    "order_test00000001",
		MerchantID: f.merchant.ID,
		Amount:     10000,
		Currency:   "INR",
		Method:     models.MethodUPI,
		Status:     models.PaymentSuccess,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.payments.Create(f.payment))

	return f
}

func TestCreateRefundPending(t *testing.T) {
	f := newRefundFixture(t)

	refund, err := f.svc.Create(context.Background(), f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 4000})
	require.NoError(t, err)
	require.Equal(t, models.RefundPending, refund.Status)
	require.Equal(t, int64(4000), refund.Amount)
	require.Equal(t, f.payment.ID, refund.PaymentID)
}

func TestCreateRefundRequiresSuccessfulPayment(t *testing.T) {
	f := newRefundFixture(t)
	ctx := context.Background()

	pending := &models.Payment{
		ID:         "pay_pending0000001",
		MerchantID: f.merchant.ID,
		Amount:     10000,
		Status:     models.PaymentPending,
	}
	require.NoError(t, f.payments.Create(pending))

	_, err := f.svc.Create(ctx, f.merchant, pending.ID, &CreateRefundRequest{Amount: 1000})
	require.ErrorIs(t, err, utils.ErrPaymentNotRefundable)

	_, err = f.svc.Create(ctx, f.merchant, "pay_missing", &CreateRefundRequest{Amount: 1000})
	require.ErrorIs(t, err, utils.ErrPaymentNotFound)
}

func TestCreateRefundAmountValidation(t *testing.T) {
	f := newRefundFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 0})
	require.ErrorIs(t, err, utils.ErrInvalidAmount)

	_, err = f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: -500})
	require.ErrorIs(t, err, utils.ErrInvalidAmount)

	_, err = f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 10001})
	require.ErrorIs(t, err, utils.ErrRefundExceedsCaptured)
}

func TestCreateRefundHeadroomCountsActiveRefunds(t *testing.T) {
	f := newRefundFixture(t)
	ctx := context.Background()

	// 6000 of the 10000 captured amount is already spoken for.
	_, err := f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 6000})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 5000})
	require.ErrorIs(t, err, utils.ErrRefundExceedsCaptured)

	// The remaining 4000 still fits.
	_, err = f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 4000})
	require.NoError(t, err)
}

func TestCreateRefundFailedRefundReleasesHeadroom(t *testing.T) {
	f := newRefundFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 10000})
	require.NoError(t, err)

	// Fail the full-amount refund; its reservation no longer counts.
	moved, err := f.refunds.UpdateStatusFrom(first.ID, models.RefundPending, models.RefundProcessing, nil, nil)
	require.NoError(t, err)
	require.True(t, moved)
	errCode := "PAYMENT_NOT_REFUNDABLE"
	moved, err = f.refunds.UpdateStatusFrom(first.ID, models.RefundProcessing, models.RefundFailed, &errCode, nil)
	require.NoError(t, err)
	require.True(t, moved)

	_, err = f.svc.Create(ctx, f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 10000})
	require.NoError(t, err)
}

func TestGetRefundScopedToMerchant(t *testing.T) {
	f := newRefundFixture(t)

	refund, err := f.svc.Create(context.Background(), f.merchant, f.payment.ID, &CreateRefundRequest{Amount: 1000})
	require.NoError(t, err)

	got, err := f.svc.GetByID(f.merchant, refund.ID)
	require.NoError(t, err)
	require.Equal(t, refund.ID, got.ID)

	_, err = f.svc.GetByID(&models.Merchant{ID: "mch_other000000001"}, refund.ID)
	require.ErrorIs(t, err, utils.ErrRefundNotFound)
}
