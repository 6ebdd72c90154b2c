package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/velopay/gateway_api/internal/middleware"
	"github.com/velopay/gateway_api/internal/service"
	"github.com/velopay/gateway_api/internal/utils"
)

// OrderHandler handles order HTTP endpoints.
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "MISSING_FIELD", "Invalid request body")
		return
	}

	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	order, err := h.orderService.Create(merchant, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 201, "Order created", order)
}

// GetOrder handles GET /v1/orders/:orderId
func (h *OrderHandler) GetOrder(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	order, err := h.orderService.GetByID(merchant, c.Param("orderId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Order retrieved", order)
}

func (h *OrderHandler) handleError(c *gin.Context, err error) {
	switch err {
	case utils.ErrInvalidAmount:
		utils.Error(c, 400, "INVALID_AMOUNT", "Amount must be at least 100 (in the smallest currency unit)")
	case utils.ErrOrderNotFound:
		utils.Error(c, 404, "ORDER_NOT_FOUND", "Order not found")
	default:
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
	}
}
