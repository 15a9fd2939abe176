package enrollment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPaymentStatusFor(t *testing.T) {
	tests := []struct {
		name  string
		paid  string
		total string
		want  string
	}{
		{name: "nothing paid", paid: "0", total: "100", want: PaymentPending},
		{name: "free and unpaid", paid: "0", total: "0", want: PaymentPending},
		{name: "part paid", paid: "60", total: "100", want: PaymentPartial},
		{name: "fully paid", paid: "100", total: "100", want: PaymentPaid},
		{name: "overpaid", paid: "120", total: "100", want: PaymentPaid},
		{name: "cents short", paid: "99.99", total: "100", want: PaymentPartial},
		{name: "paid with zero fee", paid: "10", total: "0", want: PaymentPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PaymentStatusFor(dec(tt.paid), dec(tt.total)))
		})
	}
}

func TestRegistration_amounts(t *testing.T) {
	r := Registration{PaidAmount: decimal.Zero}
	r.SetTotalFees(dec("100"))
	assert.Equal(t, PaymentPending, r.PaymentStatus)
	assert.True(t, dec("100").Equal(r.Outstanding()))

	r.AddPayment(dec("40"))
	assert.Equal(t, PaymentPartial, r.PaymentStatus)
	assert.True(t, dec("60").Equal(r.Outstanding()))

	r.SetTotalFees(dec("40"))
	assert.Equal(t, PaymentPaid, r.PaymentStatus)
	assert.True(t, r.Outstanding().IsZero())

	r.AddPayment(dec("10"))
	assert.True(t, r.Outstanding().IsZero(), "never negative")
}
