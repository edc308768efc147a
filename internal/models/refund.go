package models

// RefundState is the refund accounting of a single booking
type RefundState struct {
	BookingID           string `db:"id" json:"booking_id"`
	PaymentStatus       string `db:"payment_status" json:"payment_status"`
	CapturedAmountCents int64  `db:"captured_amount_cents" json:"captured_amount_cents"`
	RefundAmountCents   int64  `db:"refund_amount_cents" json:"refund_amount_cents"`
}

// Apply adds a refunded amount to the accumulator and derives the payment status.
// The accumulator never decreases and never exceeds the captured amount.
func (s RefundState) Apply(amountCents int64) RefundState {
	next := s
	if amountCents <= 0 {
		return next
	}

	total := s.RefundAmountCents + amountCents
	if total > s.CapturedAmountCents {
		total = s.CapturedAmountCents
	}
	if total < s.RefundAmountCents {
		total = s.RefundAmountCents
	}
	next.RefundAmountCents = total

	switch {
	case total >= s.CapturedAmountCents:
		next.PaymentStatus = PaymentStatusRefunded
	case total > 0:
		next.PaymentStatus = PaymentStatusPartiallyRefunded
	}
	return next
}
