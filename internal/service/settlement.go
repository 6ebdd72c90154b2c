package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/velopay/gateway_api/internal/config"
	"github.com/velopay/gateway_api/internal/models"
)

var (
	vpaPattern     = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)
	cardStripChars = regexp.MustCompile(`[\s-]`)
)

// Reserved test card numbers that always decline during settlement, so the
// failed path is exercisable with an otherwise valid card.
var declinedTestCards = map[string]struct{}{
	"4111111111111111": {},
}

// Decline describes a deterministic settlement failure decided from the
// payment instrument at creation time.
type Decline struct {
	Code   string
	Reason string
}

// SettlementService resolves payments and refunds to terminal outcomes. The
// decision is fully deterministic in the instrument fields; the only
// simulated part is the processing delay.
type SettlementService struct {
	cfg config.SettlementConfig
}

// NewSettlementService constructs a SettlementService.
func NewSettlementService(cfg config.SettlementConfig) *SettlementService {
	return &SettlementService{cfg: cfg}
}

// EvaluateUPI decides the settlement outcome for a UPI instrument. A virtual
// address whose local part is "fail" or whose handle is "fail" declines;
// everything else settles successfully.
func (s *SettlementService) EvaluateUPI(vpa string) *Decline {
	local, handle, _ := strings.Cut(vpa, "@")
	if strings.EqualFold(local, "fail") || strings.EqualFold(handle, "fail") {
		return &Decline{
			Code:   "PAYMENT_FAILED",
			Reason: "Simulated UPI payment failure",
		}
	}
	return nil
}

// EvaluateCard decides the settlement outcome for a card instrument: a
// Luhn-invalid number, an expired or malformed expiry date, or a reserved
// always-decline test number all fail; everything else settles successfully.
func (s *SettlementService) EvaluateCard(number, expiryMonth, expiryYear string) *Decline {
	digits := cardStripChars.ReplaceAllString(number, "")
	if !LuhnValid(digits) {
		return &Decline{
			Code:   "INVALID_CARD",
			Reason: "Card validation failed",
		}
	}
	if !ValidExpiry(expiryMonth, expiryYear) {
		return &Decline{
			Code:   "EXPIRED_CARD",
			Reason: "Card expiry date invalid",
		}
	}
	if _, declined := declinedTestCards[digits]; declined {
		return &Decline{
			Code:   "PAYMENT_DECLINED",
			Reason: "Card declined by issuer",
		}
	}
	return nil
}

// SettlePayment resolves a claimed payment after the simulated processing
// delay. It honors context cancellation during the wait.
func (s *SettlementService) SettlePayment(ctx context.Context, p *models.Payment) (success bool, errCode, errDesc *string) {
	s.wait(ctx, s.cfg.ProcessingDelay)
	if p.DeclineCode != nil {
		return false, p.DeclineCode, p.DeclineReason
	}
	return true, nil, nil
}

// WaitRefund simulates refund processing time.
func (s *SettlementService) WaitRefund(ctx context.Context) {
	s.wait(ctx, s.cfg.RefundDelay)
}

func (s *SettlementService) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// ValidVPA reports whether the string is a structurally valid virtual payment
// address (local@handle).
func ValidVPA(vpa string) bool {
	return vpaPattern.MatchString(vpa)
}

// LuhnValid reports whether the digit string passes the Luhn checksum and has
// a plausible card length.
func LuhnValid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	total := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		ch := digits[i]
		if ch < '0' || ch > '9' {
			return false
		}
		v := int(ch - '0')
		if double {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		total += v
		double = !double
	}
	return total%10 == 0
}

// DetectCardNetwork identifies the card scheme from the number prefix.
func DetectCardNetwork(number string) string {
	digits := cardStripChars.ReplaceAllString(number, "")
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case inPrefixRange(digits, 51, 55):
		return "mastercard"
	case strings.HasPrefix(digits, "34") || strings.HasPrefix(digits, "37"):
		return "amex"
	case strings.HasPrefix(digits, "60") || strings.HasPrefix(digits, "65") || inPrefixRange(digits, 81, 89):
		return "rupay"
	default:
		return "unknown"
	}
}

// CardLast4 extracts the final four digits of a card number.
func CardLast4(number string) string {
	digits := cardStripChars.ReplaceAllString(number, "")
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// ValidExpiry reports whether the expiry month/year is well formed and not in
// the past. Two-digit years are interpreted as 20xx.
func ValidExpiry(month, year string) bool {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return false
	}
	if len(year) == 2 {
		y += 2000
	}
	now := time.Now().UTC()
	return y > now.Year() || (y == now.Year() && m >= int(now.Month()))
}

func inPrefixRange(digits string, lo, hi int) bool {
	if len(digits) < 2 {
		return false
	}
	p, err := strconv.Atoi(digits[:2])
	if err != nil {
		return false
	}
	return p >= lo && p <= hi
}
