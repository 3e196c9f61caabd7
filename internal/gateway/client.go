// Package gateway talks to the external payment gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

const chargePath = "/v1/charges"

type chargeBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	DeclineReason string `json:"decline_reason"`
}

type Client struct {
	baseURL string
	signer  Signer
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL, clientID, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  Signer{ClientID: clientID, SecretKey: secret},
		http:    httpClient,
		now:     time.Now,
	}
}

// Authorize captures req.Amount. A refusal by the gateway is returned as
// domain.ErrGatewayDeclined; transport failures and unexpected responses are
// plain errors because the charge may or may not have happened.
func (c *Client) Authorize(ctx context.Context, req domain.ChargeRequest) (domain.Authorization, error) {
	body, err := json.Marshal(chargeBody{Amount: req.Amount, Currency: req.Currency, Metadata: req.Metadata})
	if err != nil {
		return domain.Authorization{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chargePath, bytes.NewReader(body))
	if err != nil {
		return domain.Authorization{}, err
	}
	for k, v := range c.signer.Headers(chargePath, body, c.now()) {
		httpReq.Header.Set(k, v)
	}
	if key := req.Metadata["booking_id"]; key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Authorization{}, errors.Wrap(err, "gateway request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Authorization{}, errors.Wrap(err, "read gateway response")
	}
	var out chargeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return domain.Authorization{}, errors.Wrapf(err, "decode gateway response (status %d)", resp.StatusCode)
		}
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || out.Status == "declined":
		reason := out.DeclineReason
		if reason == "" {
			reason = "declined"
		}
		return domain.Authorization{}, errors.Wrap(domain.ErrGatewayDeclined, reason)
	case resp.StatusCode >= 300:
		return domain.Authorization{}, errors.Newf("gateway returned status %d", resp.StatusCode)
	case out.ID == "":
		return domain.Authorization{}, errors.New("gateway response missing charge id")
	}
	currency := out.Currency
	if currency == "" {
		currency = req.Currency
	}
	return domain.Authorization{ExternalID: out.ID, Amount: out.Amount, Currency: currency}, nil
}
