package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intentledger/internal/hmacauth"
	"intentledger/internal/identity"
	"intentledger/internal/logger"
	"intentledger/internal/registry"
)

// Client talks to the registry HTTP API. Mutations are signed with the
// caller's HMAC secret.
type Client struct {
	endpoint   string
	httpClient *http.Client
	caller     identity.Identity
	secret     string
	logger     logger.Logger
	now        func() time.Time
}

func NewClient(endpoint string, caller identity.Identity, secret string, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
		caller:     caller,
		secret:     secret,
		logger:     log,
		now:        time.Now,
	}
}

type listResponse struct {
	Intents []registry.PaymentIntent `json:"intents"`
}

// ListOpenIntents fetches every unfulfilled intent.
func (c *Client) ListOpenIntents(ctx context.Context) ([]registry.PaymentIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/v1/intents?status=open", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch open intents: %w", err)
	}

	var out listResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	if out.Intents == nil {
		return []registry.PaymentIntent{}, nil
	}
	return out.Intents, nil
}

type getResponse struct {
	Intent *registry.PaymentIntent `json:"intent"`
}

// GetIntent fetches the first intent stored under id, or nil when none is.
func (c *Client) GetIntent(ctx context.Context, id string) (*registry.PaymentIntent, error) {
	path := c.endpoint + "/api/v1/intents/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch intent %s: %w", id, err)
	}
	var out getResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return out.Intent, nil
}

type fulfillResponse struct {
	Status string `json:"status"`
}

// MarkFulfilled records the payout hash for an intent. It reports whether
// the registry closed an intent; a "noop" answer means it did not.
func (c *Client) MarkFulfilled(ctx context.Context, id, payoutTxHash string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"payout_tx_hash": payoutTxHash})
	if err != nil {
		return false, err
	}
	path := c.endpoint + "/api/v1/intents/" + url.PathEscape(id) + "/fulfill"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	hmacauth.SignRequest(req, c.caller, c.secret, payload, c.now())

	body, err := c.do(req)
	if err != nil {
		return false, fmt.Errorf("mark intent %s fulfilled: %w", id, err)
	}
	var out fulfillResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("decode fulfill response: %w", err)
	}
	return out.Status == "fulfilled", nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	return bodyBytes, nil
}

// StatusError is returned for non-2xx registry responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
