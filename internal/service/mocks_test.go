package service

import (
	"sort"
	"sync"
	"time"

	"github.com/velopay/gateway_api/internal/models"
)

// In-memory store fakes backing the service and worker tests. They are
// mutex-guarded so concurrent worker tests can share them.

type fakeMerchantStore struct {
	mu        sync.Mutex
	merchants map[string]*models.Merchant
}

func newFakeMerchantStore() *fakeMerchantStore {
	return &fakeMerchantStore{merchants: make(map[string]*models.Merchant)}
}

func (s *fakeMerchantStore) Create(m *models.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.merchants[m.ID] = &cp
	return nil
}

func (s *fakeMerchantStore) GetByID(id string) (*models.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMerchantStore) GetByAPIKey(apiKey string) (*models.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.merchants {
		if m.APIKey == apiKey {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeMerchantStore) GetByEmail(email string) (*models.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.merchants {
		if m.Email == email {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeMerchantStore) UpdateWebhookURL(id string, url *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.merchants[id]; ok {
		m.WebhookURL = url
	}
	return nil
}

func (s *fakeMerchantStore) UpdateWebhookSecret(id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.merchants[id]; ok {
		m.WebhookSecret = secret
	}
	return nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func (s *fakeOrderStore) Create(o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *fakeOrderStore) GetByID(id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*models.Payment)}
}

func (s *fakePaymentStore) Create(p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *fakePaymentStore) GetByID(id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakePaymentStore) ListByMerchant(merchantID string, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.MerchantID == merchantID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakePaymentStore) MarkCaptured(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status != models.PaymentSuccess {
		return false, nil
	}
	p.Captured = true
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *fakePaymentStore) UpdateStatusFrom(id string, from, to models.PaymentStatus, errCode, errDesc *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.ErrorCode = errCode
	p.ErrorDescription = errDesc
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

type fakeRefundStore struct {
	mu      sync.Mutex
	refunds map[string]*models.Refund
}

func newFakeRefundStore() *fakeRefundStore {
	return &fakeRefundStore{refunds: make(map[string]*models.Refund)}
}

func (s *fakeRefundStore) Create(rf *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rf
	s.refunds[rf.ID] = &cp
	return nil
}

func (s *fakeRefundStore) GetByID(id string) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.refunds[id]
	if !ok {
		return nil, nil
	}
	cp := *rf
	return &cp, nil
}

func (s *fakeRefundStore) SumActive(paymentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, rf := range s.refunds {
		if rf.PaymentID == paymentID && rf.Status != models.RefundFailed {
			total += rf.Amount
		}
	}
	return total, nil
}

func (s *fakeRefundStore) UpdateStatusFrom(id string, from, to models.RefundStatus, errCode *string, processedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.refunds[id]
	if !ok || rf.Status != from {
		return false, nil
	}
	rf.Status = to
	rf.ErrorCode = errCode
	rf.ProcessedAt = processedAt
	rf.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *fakeRefundStore) CommitSucceededWithinCap(id, paymentID string, amount, captured int64, processedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.refunds[id]
	if !ok || rf.Status != models.RefundProcessing {
		return false, nil
	}
	var succeeded int64
	for _, other := range s.refunds {
		if other.PaymentID == paymentID && other.Status == models.RefundSucceeded {
			succeeded += other.Amount
		}
	}
	if succeeded+amount > captured {
		return false, nil
	}
	rf.Status = models.RefundSucceeded
	rf.ProcessedAt = &processedAt
	rf.UpdatedAt = time.Now().UTC()
	return true, nil
}

type fakeWebhookStore struct {
	mu         sync.Mutex
	deliveries map[string]*models.WebhookDelivery
	attempts   map[string][]models.WebhookDeliveryAttempt
	nextID     int64
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{
		deliveries: make(map[string]*models.WebhookDelivery),
		attempts:   make(map[string][]models.WebhookDeliveryAttempt),
	}
}

func (s *fakeWebhookStore) CreateDelivery(d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.deliveries[d.ID] = &cp
	return nil
}

func (s *fakeWebhookStore) GetDelivery(id string) (*models.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *fakeWebhookStore) UpdateDelivery(d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deliveries[d.ID] = &cp
	return nil
}

func (s *fakeWebhookStore) AppendAttempt(a *models.WebhookDeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *a
	cp.ID = s.nextID
	cp.CreatedAt = time.Now().UTC()
	s.attempts[a.DeliveryID] = append(s.attempts[a.DeliveryID], cp)
	return nil
}

func (s *fakeWebhookStore) ListDeliveries(merchantID string, limit, offset int) ([]models.WebhookDelivery, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.WebhookDelivery
	for _, d := range s.deliveries {
		if d.MerchantID == merchantID {
			all = append(all, *d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *fakeWebhookStore) ListAttempts(deliveryID string) ([]models.WebhookDeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WebhookDeliveryAttempt(nil), s.attempts[deliveryID]...), nil
}
