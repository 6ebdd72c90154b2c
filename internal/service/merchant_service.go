package service

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/velopay/gateway_api/internal/config"
	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/utils"
)

// MerchantService handles merchant credential checks and webhook endpoint
// configuration.
type MerchantService struct {
	merchantStore MerchantStore
}

// NewMerchantService constructs a MerchantService.
func NewMerchantService(merchantStore MerchantStore) *MerchantService {
	return &MerchantService{merchantStore: merchantStore}
}

// Authenticate validates an API key/secret pair and returns the merchant.
func (s *MerchantService) Authenticate(apiKey, apiSecret string) (*models.Merchant, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, utils.ErrInvalidCredentials
	}
	merchant, err := s.merchantStore.GetByAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	if merchant == nil || !merchant.IsActive {
		return nil, utils.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(merchant.APISecretHash), []byte(apiSecret)) != nil {
		return nil, utils.ErrInvalidCredentials
	}
	return merchant, nil
}

// WebhookConfig returns the merchant's webhook endpoint and signing secret.
func (s *MerchantService) WebhookConfig(merchant *models.Merchant) (url *string, secret string) {
	return merchant.WebhookURL, merchant.WebhookSecret
}

// UpdateWebhookURL sets the merchant's webhook endpoint, generating a signing
// secret on first configuration.
func (s *MerchantService) UpdateWebhookURL(merchant *models.Merchant, url *string) (string, error) {
	if err := s.merchantStore.UpdateWebhookURL(merchant.ID, url); err != nil {
		return "", err
	}
	merchant.WebhookURL = url

	if merchant.WebhookSecret == "" {
		secret, err := utils.GenerateWebhookSecret()
		if err != nil {
			return "", err
		}
		if err := s.merchantStore.UpdateWebhookSecret(merchant.ID, secret); err != nil {
			return "", err
		}
		merchant.WebhookSecret = secret
	}
	return merchant.WebhookSecret, nil
}

// RegenerateWebhookSecret rotates the merchant's webhook signing secret.
func (s *MerchantService) RegenerateWebhookSecret(merchant *models.Merchant) (string, error) {
	secret, err := utils.GenerateWebhookSecret()
	if err != nil {
		return "", err
	}
	if err := s.merchantStore.UpdateWebhookSecret(merchant.ID, secret); err != nil {
		return "", err
	}
	merchant.WebhookSecret = secret
	return secret, nil
}

// SeedTestMerchant ensures the well-known test merchant exists so the
// simulator is usable out of the box.
func (s *MerchantService) SeedTestMerchant(cfg *config.TestSeedConfig) error {
	existing, err := s.merchantStore.GetByEmail(cfg.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.WebhookSecret == "" {
			return s.merchantStore.UpdateWebhookSecret(existing.ID, cfg.WebhookSecret)
		}
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.APISecret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	merchant := &models.Merchant{
		ID:            uuid.New().String(),
		Name:          "Test Merchant",
		Email:         cfg.Email,
		APIKey:        cfg.APIKey,
		APISecretHash: string(hash),
		WebhookSecret: cfg.WebhookSecret,
		IsActive:      true,
	}
	if err := s.merchantStore.Create(merchant); err != nil {
		return err
	}
	log.Info().Str("email", cfg.Email).Msg("Seeded test merchant")
	return nil
}
