package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountAmount     DiscountKind = "amount"
)

const (
	MsgVoucherExpired     = "Este voucher está expirado"
	MsgVoucherInactive    = "Este voucher não é mais válido"
	MsgVoucherUsed        = "Este voucher já foi utilizado"
	MsgVoucherUnavailable = "Este voucher não está mais disponível"
)

type Voucher struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	Kind       DiscountKind    `json:"kind"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
	Quantity   int             `json:"quantity"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Active     bool            `json:"active"`
	Used       bool            `json:"used"`
	UsedAt     *time.Time      `json:"used_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Validate checks whether the voucher can still be applied at now.
// A zero Voucher is never applicable.
func (v *Voucher) Validate(now time.Time) ValidationResult {
	var result ValidationResult
	if !v.ExpiresAt.After(now) {
		result.Add("voucher", MsgVoucherExpired)
	}
	if !v.Active {
		result.Add("voucher", MsgVoucherInactive)
	}
	if v.Used {
		result.Add("voucher", MsgVoucherUsed)
	}
	if v.Quantity <= 0 {
		result.Add("voucher", MsgVoucherUnavailable)
	}
	return result
}

// DiscountFor returns the discount on subtotal, never more than subtotal.
func (v *Voucher) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch v.Kind {
	case DiscountPercentage:
		discount = subtotal.Mul(v.Percentage).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountAmount:
		discount = v.Amount
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// MarkUsed consumes one use. The last use deactivates the voucher.
func (v *Voucher) MarkUsed(now time.Time) {
	v.Quantity--
	if v.Quantity > 0 {
		return
	}
	v.Quantity = 0
	v.Active = false
	v.Used = true
	v.UsedAt = &now
}
