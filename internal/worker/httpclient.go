package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient implements CardClient against a running coordinator HTTP
// surface (internal/handler.CardHandler).
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient. A nil HTTP.Client defaults to
// http.DefaultClient.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{BaseURL: baseURL, HTTP: client}
}

type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

type wireCard struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (envelope, int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return envelope{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return envelope{}, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, resp.StatusCode, err
	}
	return env, resp.StatusCode, nil
}

// ListOpen calls GET /cards?state=open.
func (c *HTTPClient) ListOpen(ctx context.Context) ([]Card, error) {
	env, status, err := c.do(ctx, http.MethodGet, "/cards?state=open", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list open cards: unexpected status %d", status)
	}
	var wire []wireCard
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return nil, err
	}
	out := make([]Card, len(wire))
	for i, w := range wire {
		out[i] = Card{ID: w.ID, State: w.State}
	}
	return out, nil
}

// Claim calls POST /cards/{id}/claim.
func (c *HTTPClient) Claim(ctx context.Context, id, nodeID string, leaseDuration time.Duration) error {
	_, status, err := c.do(ctx, http.MethodPost, "/cards/"+id+"/claim", map[string]any{
		"node_id": nodeID, "lease_duration": leaseDuration,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("claim %s: unexpected status %d", id, status)
	}
	return nil
}

// Renew calls POST /cards/{id}/renew.
func (c *HTTPClient) Renew(ctx context.Context, id, nodeID string, leaseDuration time.Duration) error {
	_, status, err := c.do(ctx, http.MethodPost, "/cards/"+id+"/renew", map[string]any{
		"node_id": nodeID, "lease_duration": leaseDuration,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("renew %s: unexpected status %d", id, status)
	}
	return nil
}

// Complete calls POST /cards/{id}/complete. Per the coordinator's
// first-terminal-transition-wins contract, callers must accept whatever
// result comes back even if a different worker actually committed it.
func (c *HTTPClient) Complete(ctx context.Context, id, nodeID string, result any) error {
	_, status, err := c.do(ctx, http.MethodPost, "/cards/"+id+"/complete", map[string]any{
		"node_id": nodeID, "result": result,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("complete %s: unexpected status %d", id, status)
	}
	return nil
}
