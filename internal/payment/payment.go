// Package payment wraps the external payment-intent collaborator.  The
// confirmation consumer only needs one operation: create an intent for
// the order total.
package payment

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"
)

// Intent is the collaborator's handle for a pending payment.  The client
// secret is forwarded to the buyer's browser to complete the capture.
type Intent struct {
    ID           string `json:"intent_id"`
    ClientSecret string `json:"client_secret"`
}

// Service is the payment collaborator contract.
type Service interface {
    CreateIntent(ctx context.Context, amountCents uint32) (Intent, error)
}

// Client calls the payment service over HTTP.
type Client struct {
    baseURL string
    http    *http.Client
}

// NewClient returns a client for the payment service at baseURL.
func NewClient(baseURL string) *Client {
    return &Client{
        baseURL: baseURL,
        http:    &http.Client{Timeout: 10 * time.Second},
    }
}

func (c *Client) CreateIntent(ctx context.Context, amountCents uint32) (Intent, error) {
    body, _ := json.Marshal(map[string]uint32{"amount_cents": amountCents})
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intents", bytes.NewReader(body))
    if err != nil {
        return Intent{}, err
    }
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil {
        return Intent{}, fmt.Errorf("payment: create intent: %w", err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
        return Intent{}, fmt.Errorf("payment: create intent: unexpected status %d", resp.StatusCode)
    }
    var intent Intent
    if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
        return Intent{}, fmt.Errorf("payment: decode intent: %w", err)
    }
    return intent, nil
}

// Disabled is a no-op Service used when no payment backend is
// configured (e.g. free events, local development).  The empty intent it
// returns keeps payment_ref NULL on the resulting order.
type Disabled struct{}

func (Disabled) CreateIntent(ctx context.Context, amountCents uint32) (Intent, error) {
    return Intent{}, nil
}
