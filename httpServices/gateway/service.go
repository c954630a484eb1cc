package httpServices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GatewayClient talks to the payment gateway over HTTP. Every call carries a
// bounded timeout; a timeout is treated as failure, never as success, and the
// caller rolls back (reconciliation of ambiguous outcomes is a manual step).
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (c *GatewayClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("gateway returned non-OK status: " + resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}

	return nil
}

// Capture converts the authorization hold into an actual funds transfer.
func (c *GatewayClient) Capture(ctx context.Context, intentRef string) error {
	var apiResp GatewayResponse
	if err := c.post(ctx, "/payments/capture", CaptureRequest{IntentRef: intentRef}, &apiResp); err != nil {
		return err
	}
	if apiResp.Status != "succeeded" {
		return fmt.Errorf("capture not accepted: %s %s", apiResp.Status, apiResp.Message)
	}
	return nil
}

// CancelAuthorization releases the hold without transferring funds.
func (c *GatewayClient) CancelAuthorization(ctx context.Context, intentRef string) error {
	var apiResp GatewayResponse
	if err := c.post(ctx, "/payments/cancel-authorization", VoidRequest{IntentRef: intentRef}, &apiResp); err != nil {
		return err
	}
	if apiResp.Status != "succeeded" {
		return fmt.Errorf("void not accepted: %s %s", apiResp.Status, apiResp.Message)
	}
	return nil
}

// Refund returns the given amount to the guest and yields the gateway's
// refund handle.
func (c *GatewayClient) Refund(ctx context.Context, intentRef string, amount int64) (string, error) {
	var apiResp RefundResponse
	if err := c.post(ctx, "/payments/refund", RefundRequest{IntentRef: intentRef, Amount: amount}, &apiResp); err != nil {
		return "", err
	}
	if apiResp.Status != "succeeded" || apiResp.RefundRef == "" {
		return "", fmt.Errorf("refund not accepted: %s %s", apiResp.Status, apiResp.Message)
	}
	return apiResp.RefundRef, nil
}
