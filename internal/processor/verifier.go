package processor

import (
	"errors"
	"fmt"
	"strings"

	"payment-reconciler/internal/models"

	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature is returned for deliveries that fail signature
// verification, including stale timestamps.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier authenticates raw webhook deliveries with the endpoint secret
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the given endpoint secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret)}
}

// Verify checks the signature over the exact received bytes and returns the
// event envelope. The payload's data.object is kept undecoded for the router.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (*models.Envelope, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no endpoint secret configured", ErrInvalidSignature)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}

	if event.ID == "" || event.Type == "" || event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: incomplete event envelope", models.ErrMalformedPayload)
	}

	return &models.Envelope{
		ID:       event.ID,
		Type:     string(event.Type),
		Created:  event.Created,
		Livemode: event.Livemode,
		Data:     event.Data.Raw,
	}, nil
}
