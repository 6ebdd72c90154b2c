package handler

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/velopay/gateway_api/internal/middleware"
	"github.com/velopay/gateway_api/internal/service"
	"github.com/velopay/gateway_api/internal/utils"
)

// PaymentHandler handles payment HTTP endpoints.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreatePayment handles POST /v1/payments
//
// An optional Idempotency-Key header makes the call safely retryable:
// resubmissions with the same key and body replay the original response.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "MISSING_FIELD", "Invalid request body")
		return
	}

	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	response, err := h.paymentService.Create(c.Request.Context(), merchant, &req, idempotencyKey)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 201, "Payment accepted", json.RawMessage(response))
}

// GetPayment handles GET /v1/payments/:paymentId
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	payment, err := h.paymentService.GetByID(merchant, c.Param("paymentId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Payment retrieved", payment)
}

// CapturePaymentRequest is the capture input; the amount must match the
// settled amount exactly.
type CapturePaymentRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// CapturePayment handles POST /v1/payments/:paymentId/capture
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	var req CapturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "MISSING_FIELD", "Invalid request body")
		return
	}

	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	payment, err := h.paymentService.Capture(merchant, c.Param("paymentId"), req.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Payment captured", payment)
}

// ListPayments handles GET /v1/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	payments, err := h.paymentService.List(merchant, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Payments retrieved", payments)
}

func (h *PaymentHandler) handleError(c *gin.Context, err error) {
	switch err {
	case utils.ErrOrderNotFound:
		utils.Error(c, 404, "ORDER_NOT_FOUND", "Order not found")
	case utils.ErrPaymentNotFound:
		utils.Error(c, 404, "PAYMENT_NOT_FOUND", "Payment not found")
	case utils.ErrInvalidMethod:
		utils.Error(c, 400, "INVALID_METHOD", "Method must be 'upi' or 'card'")
	case utils.ErrInvalidVPA:
		utils.Error(c, 400, "INVALID_VPA", "VPA format is invalid")
	case utils.ErrInvalidCard:
		utils.Error(c, 400, "INVALID_CARD", "Card details are missing or invalid")
	case utils.ErrInvalidAmount:
		utils.Error(c, 400, "INVALID_AMOUNT", "Amount must equal the settled payment amount")
	case utils.ErrInvalidTransition:
		utils.Error(c, 400, "INVALID_TRANSITION", "Payment is not in a capturable state")
	case utils.ErrIdempotencyConflict:
		utils.Error(c, 409, "IDEMPOTENCY_CONFLICT", "Idempotency key was used with a different request body")
	default:
		// Queue errors arrive wrapped with transport detail.
		if errors.Is(err, utils.ErrQueueUnavailable) {
			utils.Error(c, 503, "QUEUE_UNAVAILABLE", "Processing queue is unavailable, try again")
			return
		}
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
	}
}
