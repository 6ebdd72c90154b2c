package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/velopay/gateway_api/internal/middleware"
	"github.com/velopay/gateway_api/internal/service"
	"github.com/velopay/gateway_api/internal/utils"
)

// RefundHandler handles refund HTTP endpoints.
type RefundHandler struct {
	refundService *service.RefundService
}

// NewRefundHandler constructs a RefundHandler.
func NewRefundHandler(refundService *service.RefundService) *RefundHandler {
	return &RefundHandler{refundService: refundService}
}

// CreateRefund handles POST /v1/payments/:paymentId/refunds
func (h *RefundHandler) CreateRefund(c *gin.Context) {
	var req service.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "MISSING_FIELD", "Invalid request body")
		return
	}

	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	refund, err := h.refundService.Create(c.Request.Context(), merchant, c.Param("paymentId"), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 201, "Refund accepted", refund)
}

// GetRefund handles GET /v1/refunds/:refundId
func (h *RefundHandler) GetRefund(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	refund, err := h.refundService.GetByID(merchant, c.Param("refundId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Refund retrieved", refund)
}

func (h *RefundHandler) handleError(c *gin.Context, err error) {
	switch err {
	case utils.ErrPaymentNotFound:
		utils.Error(c, 404, "PAYMENT_NOT_FOUND", "Payment not found")
	case utils.ErrRefundNotFound:
		utils.Error(c, 404, "REFUND_NOT_FOUND", "Refund not found")
	case utils.ErrPaymentNotRefundable:
		utils.Error(c, 400, "PAYMENT_NOT_REFUNDABLE", "Only successful payments can be refunded")
	case utils.ErrInvalidAmount:
		utils.Error(c, 400, "INVALID_AMOUNT", "Refund amount must be positive")
	case utils.ErrRefundExceedsCaptured:
		utils.Error(c, 400, "REFUND_EXCEEDS_CAPTURED_AMOUNT", "Refund amount exceeds the refundable balance")
	default:
		if errors.Is(err, utils.ErrQueueUnavailable) {
			utils.Error(c, 503, "QUEUE_UNAVAILABLE", "Processing queue is unavailable, try again")
			return
		}
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
	}
}
