package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// TokenFunc returns a bearer token for the next request.
type TokenFunc func(ctx context.Context) (string, error)

// RESTClient issues authenticated JSON calls against a provider management API.
type RESTClient struct {
	provider models.Provider
	client   *http.Client
	token    TokenFunc
}

func NewRESTClient(provider models.Provider, timeout time.Duration, token TokenFunc) *RESTClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		token:    token,
	}
}

// Do sends body as JSON (when non-nil) and decodes the response into out
// (when non-nil). Non-2xx responses become a ProviderError; 404 also matches ErrNotFound.
func (c *RESTClient) Do(ctx context.Context, op, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return NewProviderError(c.provider, op, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return NewProviderError(c.provider, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return NewProviderError(c.provider, op, fmt.Errorf("failed to acquire token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.WithProvider(string(c.provider)).Debugf("%s %s", method, url)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewProviderError(c.provider, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(c.provider, op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return &ProviderError{Provider: c.provider, Op: op, Message: errorMessage(payload, resp.StatusCode), Err: ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{
			Provider: c.provider,
			Op:       op,
			Message:  errorMessage(payload, resp.StatusCode),
			Err:      fmt.Errorf("unexpected status code %d", resp.StatusCode),
		}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return NewProviderError(c.provider, op, fmt.Errorf("invalid response: %w", err))
	}
	return nil
}

// errorMessage extracts {"error":{"message":...}}, the envelope Azure and GCP share.
func errorMessage(payload []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("status %d", status)
}

func (c *RESTClient) Close() {
	c.client.CloseIdleConnections()
}
