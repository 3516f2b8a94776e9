package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestVoucher_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	valid := func() Voucher {
		return Voucher{
			Code:       "PROMO10",
			Kind:       DiscountPercentage,
			Percentage: decimal.NewFromInt(10),
			Quantity:   5,
			ExpiresAt:  now.Add(24 * time.Hour),
			Active:     true,
		}
	}

	t.Run("applicable voucher", func(t *testing.T) {
		v := valid()
		if result := v.Validate(now); !result.IsValid() {
			t.Errorf("expected valid, got %v", result.Messages())
		}
	})

	t.Run("zero voucher is not applicable", func(t *testing.T) {
		var v Voucher
		if v.Validate(now).IsValid() {
			t.Error("expected zero voucher to be invalid")
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Voucher)
		message string
	}{
		{name: "expired", mutate: func(v *Voucher) { v.ExpiresAt = now.Add(-time.Minute) }, message: MsgVoucherExpired},
		{name: "inactive", mutate: func(v *Voucher) { v.Active = false }, message: MsgVoucherInactive},
		{name: "used", mutate: func(v *Voucher) { v.Used = true }, message: MsgVoucherUsed},
		{name: "exhausted", mutate: func(v *Voucher) { v.Quantity = 0 }, message: MsgVoucherUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid()
			tt.mutate(&v)

			result := v.Validate(now)
			if !result.Has(tt.message) {
				t.Errorf("expected %q, got %v", tt.message, result.Messages())
			}
		})
	}
}

func TestVoucher_MarkUsed(t *testing.T) {
	now := time.Now()
	v := Voucher{Quantity: 2, Active: true}

	v.MarkUsed(now)
	if v.Quantity != 1 || v.Used || !v.Active {
		t.Fatalf("unexpected voucher after first use: %+v", v)
	}

	v.MarkUsed(now)
	if v.Quantity != 0 || !v.Used || v.Active || v.UsedAt == nil {
		t.Fatalf("unexpected voucher after last use: %+v", v)
	}
}

func TestVoucher_DiscountFor(t *testing.T) {
	subtotal := decimal.NewFromInt(200)

	tests := []struct {
		name    string
		voucher Voucher
		want    string
	}{
		{name: "percentage", voucher: Voucher{Kind: DiscountPercentage, Percentage: decimal.NewFromInt(15)}, want: "30"},
		{name: "amount", voucher: Voucher{Kind: DiscountAmount, Amount: decimal.NewFromInt(25)}, want: "25"},
		{name: "amount capped", voucher: Voucher{Kind: DiscountAmount, Amount: decimal.NewFromInt(250)}, want: "200"},
		{name: "unknown kind", voucher: Voucher{Kind: "bogus", Amount: decimal.NewFromInt(25)}, want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.voucher.DiscountFor(subtotal)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
