package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/velopay/gateway_api/internal/middleware"
	"github.com/velopay/gateway_api/internal/service"
	"github.com/velopay/gateway_api/internal/utils"
)

// WebhookHandler exposes the merchant-facing webhook surface: endpoint
// configuration, the delivery log, and manual retry.
type WebhookHandler struct {
	webhookService  *service.WebhookService
	merchantService *service.MerchantService
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(webhookService *service.WebhookService, merchantService *service.MerchantService) *WebhookHandler {
	return &WebhookHandler{
		webhookService:  webhookService,
		merchantService: merchantService,
	}
}

type updateWebhookConfigRequest struct {
	URL *string `json:"url"`
}

// GetConfig handles GET /v1/webhooks/config
func (h *WebhookHandler) GetConfig(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	url, secret := h.merchantService.WebhookConfig(merchant)
	utils.Success(c, 200, "Webhook configuration retrieved", gin.H{
		"url":    url,
		"secret": secret,
	})
}

// UpdateConfig handles PUT /v1/webhooks/config
//
// Setting a URL for the first time mints the signing secret; passing a null
// URL disables delivery without discarding the secret.
func (h *WebhookHandler) UpdateConfig(c *gin.Context) {
	var req updateWebhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "MISSING_FIELD", "Invalid request body")
		return
	}

	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	if req.URL != nil {
		trimmed := strings.TrimSpace(*req.URL)
		if trimmed == "" || (!strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://")) {
			utils.Error(c, 400, "INVALID_URL", "Webhook URL must be an http(s) URL")
			return
		}
		req.URL = &trimmed
	}

	secret, err := h.merchantService.UpdateWebhookURL(merchant, req.URL)
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
		return
	}

	utils.Success(c, 200, "Webhook configuration updated", gin.H{
		"url":    req.URL,
		"secret": secret,
	})
}

// RegenerateSecret handles POST /v1/webhooks/config/regenerate-secret
func (h *WebhookHandler) RegenerateSecret(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	secret, err := h.merchantService.RegenerateWebhookSecret(merchant)
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
		return
	}

	utils.Success(c, 200, "Webhook secret regenerated", gin.H{"secret": secret})
}

// ListDeliveries handles GET /v1/webhooks/deliveries
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	deliveries, total, err := h.webhookService.ListDeliveries(merchant.ID, limit, offset)
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
		return
	}

	utils.SuccessWithPagination(c, 200, "Deliveries retrieved", deliveries, limit, offset, total)
}

// ListAttempts handles GET /v1/webhooks/deliveries/:deliveryId/attempts
func (h *WebhookHandler) ListAttempts(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	attempts, err := h.webhookService.ListAttempts(merchant.ID, c.Param("deliveryId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Delivery attempts retrieved", attempts)
}

// RetryDelivery handles POST /v1/webhooks/deliveries/:deliveryId/retry
func (h *WebhookHandler) RetryDelivery(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	delivery, err := h.webhookService.ManualRetry(c.Request.Context(), merchant.ID, c.Param("deliveryId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Delivery re-queued", delivery)
}

// SendTest handles POST /v1/webhooks/test
//
// Pushes a synthetic payment.success event through the delivery pipeline so
// the merchant can verify endpoint and signature handling.
func (h *WebhookHandler) SendTest(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	if err := h.webhookService.SendTest(c.Request.Context(), merchant); err != nil {
		h.handleError(c, err)
		return
	}

	utils.Success(c, 200, "Test webhook scheduled", gin.H{"status": "scheduled"})
}

// GetQueueStatus handles GET /v1/webhooks/queue/status
func (h *WebhookHandler) GetQueueStatus(c *gin.Context) {
	merchant := middleware.GetMerchant(c)
	if merchant == nil {
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Unauthorized")
		return
	}

	status, err := h.webhookService.QueueStatus(c.Request.Context())
	if err != nil {
		utils.Error(c, 503, "QUEUE_UNAVAILABLE", "Processing queue is unavailable, try again")
		return
	}

	utils.Success(c, 200, "Queue status retrieved", status)
}

func (h *WebhookHandler) handleError(c *gin.Context, err error) {
	switch err {
	case utils.ErrWebhookNotFound:
		utils.Error(c, 404, "WEBHOOK_NOT_FOUND", "Webhook delivery not found")
	case utils.ErrWebhookConfigMissing:
		utils.Error(c, 400, "WEBHOOK_CONFIG_MISSING", "Configure a webhook URL first")
	case utils.ErrInvalidTransition:
		utils.Error(c, 409, "INVALID_TRANSITION", "Delivery is still pending, wait for it to finish")
	default:
		// Queue errors arrive wrapped with transport detail.
		if errors.Is(err, utils.ErrQueueUnavailable) {
			utils.Error(c, 503, "QUEUE_UNAVAILABLE", "Processing queue is unavailable, try again")
			return
		}
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
	}
}
