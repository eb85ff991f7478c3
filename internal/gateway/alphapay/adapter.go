// Package alphapay integrates the AlphaPay card gateway: a JSON REST API for
// charge creation and webhooks authenticated by an HMAC-SHA256 of the raw
// body carried in the X-Alphapay-Signature header.
package alphapay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"paygate/internal/domain"
	"paygate/internal/gateway"
)

const SignatureHeader = "X-Alphapay-Signature"

type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
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
	return domain.GatewayAlphaPay
}

type chargeRequest struct {
	MerchantOrderID string            `json:"merchant_order_id"`
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ChargeID    string `json:"charge_id"`
	RedirectURL string `json:"redirect_url"`
	Error       string `json:"error"`
}

func (a *Adapter) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	body, err := json.Marshal(chargeRequest{
		MerchantOrderID: req.OrderID,
		Amount:          req.Amount.String(),
		Currency:        req.Currency,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alphapay charge request: %w", err)
	}

	// One bounded retry on transport-level failure; business rejections are
	// permanent.
	return backoff.Retry(ctx, func() (*gateway.InitiateResult, error) {
		return a.createCharge(ctx, body)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(2))
}

func (a *Adapter) createCharge(ctx context.Context, body []byte) (*gateway.InitiateResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build alphapay request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", gateway.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: alphapay returned %d", gateway.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("%w: alphapay returned %d: %s", gateway.ErrGatewayRejected, resp.StatusCode, respBody))
	}

	var charge chargeResponse
	if err := json.Unmarshal(respBody, &charge); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decoding charge response: %v", gateway.ErrGatewayRejected, err))
	}
	if charge.ChargeID == "" {
		return nil, backoff.Permanent(fmt.Errorf("%w: charge response missing charge_id", gateway.ErrGatewayRejected))
	}
	return &gateway.InitiateResult{
		GatewayReference: charge.ChargeID,
		RedirectOrToken:  charge.RedirectURL,
	}, nil
}

type webhookPayload struct {
	EventID         string `json:"event_id"`
	ChargeID        string `json:"charge_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	Status          string `json:"status"`
}

func (a *Adapter) ParseWebhook(body []byte, header http.Header) (*domain.GatewayEvent, error) {
	signature := header.Get(SignatureHeader)
	if signature == "" {
		return nil, fmt.Errorf("%w: missing %s header", gateway.ErrInvalidSignature, SignatureHeader)
	}
	if !a.verify(body, signature) {
		return nil, gateway.ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if payload.ChargeID == "" && payload.MerchantOrderID == "" {
		return nil, fmt.Errorf("%w: neither charge_id nor merchant_order_id present", gateway.ErrMalformedPayload)
	}

	var reported domain.ReportedStatus
	switch payload.Status {
	case "success":
		reported = domain.ReportedStatusSuccess
	case "pending":
		reported = domain.ReportedStatusPending
	case "failed":
		reported = domain.ReportedStatusFailure
	default:
		return nil, fmt.Errorf("%w: unrecognized status %q", gateway.ErrMalformedPayload, payload.Status)
	}

	eventID := payload.EventID
	if eventID == "" {
		eventID = gateway.SynthesizeEventID(domain.GatewayAlphaPay, payload.ChargeID, reported)
	}

	return &domain.GatewayEvent{
		Gateway:          domain.GatewayAlphaPay,
		GatewayReference: payload.ChargeID,
		OrderID:          payload.MerchantOrderID,
		ReportedStatus:   reported,
		EventID:          eventID,
		ReceivedAt:       time.Now(),
		RawPayload:       body,
	}, nil
}

func (a *Adapter) verify(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature AlphaPay would attach to body. Exported for
// tests and the sandbox simulator.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
