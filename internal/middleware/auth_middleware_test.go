package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/velopay/gateway_api/internal/models"
	"github.com/velopay/gateway_api/internal/service"
)

type staticMerchantStore struct {
	merchant *models.Merchant
}

func (s *staticMerchantStore) Create(*models.Merchant) error { return nil }

func (s *staticMerchantStore) GetByID(id string) (*models.Merchant, error) {
	if s.merchant != nil && s.merchant.ID == id {
		return s.merchant, nil
	}
	return nil, nil
}

func (s *staticMerchantStore) GetByAPIKey(apiKey string) (*models.Merchant, error) {
	if s.merchant != nil && s.merchant.APIKey == apiKey {
		return s.merchant, nil
	}
	return nil, nil
}

func (s *staticMerchantStore) GetByEmail(string) (*models.Merchant, error) { return nil, nil }
func (s *staticMerchantStore) UpdateWebhookURL(string, *string) error      { return nil }
func (s *staticMerchantStore) UpdateWebhookSecret(string, string) error    { return nil }

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret_test_xyz789"), bcrypt.MinCost)
	require.NoError(t, err)
	store := &staticMerchantStore{merchant: &models.Merchant{
		ID:            "mch_test0000000001",
		APIKey:        "key_test_abc123",
		APISecretHash: string(hash),
		IsActive:      true,
	}}

	router := gin.New()
	router.Use(NewAuthMiddleware(service.NewMerchantService(store)).Handle())
	router.GET("/protected", func(c *gin.Context) {
		merchant := GetMerchant(c)
		require.NotNil(t, merchant)
		c.String(http.StatusOK, merchant.ID)
	})
	return router
}

func TestAuthMiddlewareAcceptsValidCredentials(t *testing.T) {
	router := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Api-Key", "key_test_abc123")
	req.Header.Set("X-Api-Secret", "secret_test_xyz789")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "mch_test0000000001", w.Body.String())
}

func TestAuthMiddlewareRejectsBadCredentials(t *testing.T) {
	router := newAuthRouter(t)

	cases := []struct {
		name   string
		key    string
		secret string
	}{
		{"wrong secret", "key_test_abc123", "nope"},
		{"unknown key", "key_unknown", "secret_test_xyz789"},
		{"missing headers", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.key != "" {
				req.Header.Set("X-Api-Key", tc.key)
			}
			if tc.secret != "" {
				req.Header.Set("X-Api-Secret", tc.secret)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
