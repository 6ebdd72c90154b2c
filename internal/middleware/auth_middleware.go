package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/service"
	"github.com/velopay/gateway_api/internal/utils"
)

// AuthMiddleware authenticates merchant API requests against the
// X-Api-Key / X-Api-Secret header pair.
type AuthMiddleware struct {
	merchantService *service.MerchantService
}

// NewAuthMiddleware constructs a new AuthMiddleware.
func NewAuthMiddleware(merchantService *service.MerchantService) *AuthMiddleware {
	return &AuthMiddleware{merchantService: merchantService}
}

// Handle returns a Gin middleware function that enforces authentication.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Api-Key")
		apiSecret := c.GetHeader("X-Api-Secret")

		merchant, err := m.merchantService.Authenticate(apiKey, apiSecret)
		if err != nil {
			if errors.Is(err, utils.ErrInvalidCredentials) {
				utils.Error(c, 401, "AUTHENTICATION_ERROR", "Invalid API credentials")
			} else {
				utils.Error(c, 500, "INTERNAL_ERROR", "Authentication lookup failed")
			}
			c.Abort()
			return
		}

		c.Set("merchant", merchant)
		c.Set("merchant_id", merchant.ID)
		c.Next()
	}
}

// GetMerchant returns the authenticated merchant from context.
func GetMerchant(c *gin.Context) *models.Merchant {
	merchant, _ := c.Get("merchant")
	if merchant == nil {
		return nil
	}
	return merchant.(*models.Merchant)
}
