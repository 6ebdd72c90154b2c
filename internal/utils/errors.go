package utils

import "errors"

// Common application errors used across services.
var (
	ErrInvalidCredentials    = errors.New("AUTHENTICATION_ERROR")
	ErrOrderNotFound         = errors.New("ORDER_NOT_FOUND")
	ErrPaymentNotFound       = errors.New("PAYMENT_NOT_FOUND")
	ErrRefundNotFound        = errors.New("REFUND_NOT_FOUND")
	ErrWebhookNotFound       = errors.New("WEBHOOK_NOT_FOUND")
	ErrInvalidAmount         = errors.New("INVALID_AMOUNT")
	ErrInvalidMethod         = errors.New("INVALID_METHOD")
	ErrInvalidVPA            = errors.New("INVALID_VPA")
	ErrInvalidCard           = errors.New("INVALID_CARD")
	ErrPaymentNotRefundable  = errors.New("PAYMENT_NOT_REFUNDABLE")
	ErrIdempotencyConflict   = errors.New("IDEMPOTENCY_CONFLICT")
	ErrInvalidTransition     = errors.New("INVALID_TRANSITION")
	ErrRefundExceedsCaptured = errors.New("REFUND_EXCEEDS_CAPTURED_AMOUNT")
	ErrQueueUnavailable      = errors.New("QUEUE_UNAVAILABLE")
	ErrWebhookConfigMissing  = errors.New("WEBHOOK_CONFIG_MISSING")
)
