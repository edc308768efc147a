package models

import "fmt"

func checkObject(id, object, want string) error {
	if id == "" {
		return fmt.Errorf("%w: %s without id", ErrMalformedPayload, want)
	}
	if object != "" && object != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrMalformedPayload, want, object)
	}
	return nil
}

// Validate checks the subscription payload shape
func (s *Subscription) Validate() error { return checkObject(s.ID, s.Object, "subscription") }

// Validate checks the invoice payload shape
func (i *Invoice) Validate() error { return checkObject(i.ID, i.Object, "invoice") }

// Validate checks the payment intent payload shape
func (pi *PaymentIntent) Validate() error {
	return checkObject(pi.ID, pi.Object, "payment_intent")
}

// Validate checks the charge payload shape
func (c *Charge) Validate() error {
	if err := checkObject(c.ID, c.Object, "charge"); err != nil {
		return err
	}
	if c.AmountRefunded < 0 {
		return fmt.Errorf("%w: negative amount_refunded on %s", ErrMalformedPayload, c.ID)
	}
	return nil
}

// Validate checks the account payload shape
func (a *Account) Validate() error { return checkObject(a.ID, a.Object, "account") }

// Validate checks the checkout session payload shape
func (cs *CheckoutSession) Validate() error {
	return checkObject(cs.ID, cs.Object, "checkout.session")
}
