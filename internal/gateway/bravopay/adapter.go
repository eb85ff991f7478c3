// Package bravopay integrates the BravoPay UPI gateway. Initiation hands
// back a client token instead of a redirect, webhook callbacks carry a
// digest field computed as SHA-256 over the ordered payload fields plus the
// shared secret, and transaction state is reported as a numeric code.
package bravopay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"paygate/internal/domain"
	"paygate/internal/gateway"
)

// BravoPay state codes: 2 = paid, 1 = created, anything else = failed.
const (
	stateCreated = 1
	statePaid    = 2
)

type Config struct {
	BaseURL    string
	MerchantID string
	Secret     string
	Timeout    time.Duration
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *Adapter) Name() domain.Gateway {
	return domain.GatewayBravoPay
}

type collectRequest struct {
	MerchantID string `json:"merchant_id"`
	OrderRef   string `json:"order_ref"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

type collectResponse struct {
	TxnRef      string `json:"txn_ref"`
	ClientToken string `json:"client_token"`
	Code        int    `json:"code"`
	Message     string `json:"message"`
}

func (a *Adapter) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	body, err := json.Marshal(collectRequest{
		MerchantID: a.cfg.MerchantID,
		OrderRef:   req.OrderID,
		Amount:     req.Amount.String(),
		Currency:   req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bravopay collect request: %w", err)
	}

	return backoff.Retry(ctx, func() (*gateway.InitiateResult, error) {
		return a.createCollect(ctx, body)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(2))
}

func (a *Adapter) createCollect(ctx context.Context, body []byte) (*gateway.InitiateResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/collect", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build bravopay request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", gateway.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: bravopay returned %d", gateway.ErrGatewayUnavailable, resp.StatusCode)
	}

	var collect collectResponse
	if err := json.Unmarshal(respBody, &collect); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decoding collect response: %v", gateway.ErrGatewayRejected, err))
	}
	if resp.StatusCode >= 400 || collect.TxnRef == "" {
		return nil, backoff.Permanent(fmt.Errorf("%w: code=%d message=%q", gateway.ErrGatewayRejected, collect.Code, collect.Message))
	}
	return &gateway.InitiateResult{
		GatewayReference: collect.TxnRef,
		RedirectOrToken:  collect.ClientToken,
	}, nil
}

type callbackPayload struct {
	TxnRef   string `json:"txn_ref"`
	OrderRef string `json:"order_ref"`
	State    *int   `json:"state"`
	Digest   string `json:"digest"`
}

func (a *Adapter) ParseWebhook(body []byte, _ http.Header) (*domain.GatewayEvent, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if payload.State == nil {
		return nil, fmt.Errorf("%w: missing state field", gateway.ErrMalformedPayload)
	}
	if payload.TxnRef == "" {
		return nil, fmt.Errorf("%w: missing txn_ref field", gateway.ErrMalformedPayload)
	}

	expected := Digest(a.cfg.Secret, payload.TxnRef, payload.OrderRef, *payload.State)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(payload.Digest)) != 1 {
		return nil, gateway.ErrInvalidSignature
	}

	var reported domain.ReportedStatus
	switch *payload.State {
	case statePaid:
		reported = domain.ReportedStatusSuccess
	case stateCreated:
		reported = domain.ReportedStatusPending
	case 0, -1:
		reported = domain.ReportedStatusFailure
	default:
		return nil, fmt.Errorf("%w: unrecognized state %d", gateway.ErrMalformedPayload, *payload.State)
	}

	// BravoPay does not supply an event id.
	eventID := gateway.SynthesizeEventID(domain.GatewayBravoPay, payload.TxnRef, reported)

	return &domain.GatewayEvent{
		Gateway:          domain.GatewayBravoPay,
		GatewayReference: payload.TxnRef,
		OrderID:          payload.OrderRef,
		ReportedStatus:   reported,
		EventID:          eventID,
		ReceivedAt:       time.Now(),
		RawPayload:       body,
	}, nil
}

// Digest computes BravoPay's callback digest: SHA-256 over the ordered
// fields joined with '|' plus the shared secret.
func Digest(secret, txnRef, orderRef string, state int) string {
	sum := sha256.Sum256([]byte(txnRef + "|" + orderRef + "|" + strconv.Itoa(state) + "|" + secret))
	return hex.EncodeToString(sum[:])
}
