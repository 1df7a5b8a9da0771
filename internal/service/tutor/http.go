package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient calls a tutor service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for baseURL. A zero timeout falls back to 60s.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("tutor: base URL is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type askRequest struct {
	Options map[string]any `json:"options"`
	Message string         `json:"message"`
	Context string         `json:"context"`
}

type titleRequest struct {
	Context string `json:"context"`
}

func (c *HTTPClient) Ask(ctx context.Context, options map[string]any, latestMessage, conversationContext string) (AskResult, error) {
	if options == nil {
		options = map[string]any{}
	}
	var result AskResult
	code, err := c.post(ctx, "/tutor", askRequest{
		Options: options,
		Message: latestMessage,
		Context: conversationContext,
	}, &result)
	if err != nil {
		return AskResult{}, err
	}
	if code != http.StatusOK {
		return AskResult{Code: code}, nil
	}
	if result.Code == 0 {
		result.Code = code
	}
	return result, nil
}

func (c *HTTPClient) RequestTitle(ctx context.Context, conversationContext string) (TitleResult, error) {
	var result TitleResult
	code, err := c.post(ctx, "/title", titleRequest{Context: conversationContext}, &result)
	if err != nil {
		return TitleResult{}, err
	}
	if code != http.StatusOK {
		return TitleResult{Code: code}, nil
	}
	if result.Code == 0 {
		result.Code = code
	}
	return result, nil
}

// post sends payload and decodes a 200 body into out. Other statuses are
// returned without decoding.
func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("tutor: encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("tutor: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tutor: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("tutor: decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}
