// Package gateway defines the contract every payment-gateway integration
// satisfies: turn a generic charge request into a gateway call, and turn a
// gateway webhook back into a normalized domain.GatewayEvent. Signature
// verification is strictly the adapter's business; nothing past this
// boundary ever sees an unauthenticated or untyped payload.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"paygate/internal/domain"
)

var (
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrGatewayRejected    = errors.New("gateway rejected request")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
)

type InitiateRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// InitiateResult carries the gateway's transaction reference and whatever the
// client needs to complete the payment (a redirect URL or a client token,
// depending on the gateway's flow).
type InitiateResult struct {
	GatewayReference string
	RedirectOrToken  string
}

type Adapter interface {
	Name() domain.Gateway
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	ParseWebhook(body []byte, header http.Header) (*domain.GatewayEvent, error)
}

// SynthesizeEventID derives a stable dedup key for gateways that do not send
// one. Identical retransmissions hash to the same key; a later notification
// with a different reported status is a distinct event.
func SynthesizeEventID(gw domain.Gateway, reference string, status domain.ReportedStatus) string {
	sum := sha256.Sum256([]byte(string(gw) + "|" + reference + "|" + string(status)))
	return hex.EncodeToString(sum[:])
}

// Registry resolves a gateway name to its adapter.
type Registry struct {
	adapters map[domain.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Gateway]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Lookup(gw domain.Gateway) (Adapter, bool) {
	a, ok := r.adapters[gw]
	return a, ok
}

func (r *Registry) Supported() []domain.Gateway {
	names := make([]domain.Gateway, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
