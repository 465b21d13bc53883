package syncqueue

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

	"fieldlog/pkg/domain"
)

// HTTPClient talks to the remote registry's record API. Transport
// failures wrap domain.ErrNetworkUnavailable; application rejections come
// back as *domain.RemoteError.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPClient builds a client for the given base URL with a bounded
// request timeout.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type createResponse struct {
	ServerID string `json:"serverId"`
}

type changesResponse struct {
	Records []RemoteRecord `json:"records"`
	Next    string         `json:"next"`
}

// CreateRecord registers a new observation and returns the identifier the
// registry assigned to it.
func (c *HTTPClient) CreateRecord(ctx context.Context, obs domain.Observation) (string, error) {
	var out createResponse
	err := c.do(ctx, http.MethodPost, "/api/records", obs, &out)
	if err != nil {
		return "", err
	}
	if out.ServerID == "" {
		return "", &domain.RemoteError{Status: http.StatusOK, Message: "create response missing server id"}
	}
	return out.ServerID, nil
}

// UpdateRecord replaces the registry's copy of an already-registered
// observation.
func (c *HTTPClient) UpdateRecord(ctx context.Context, serverID string, obs domain.Observation) error {
	return c.do(ctx, http.MethodPut, "/api/records/"+url.PathEscape(serverID), obs, nil)
}

// DeleteRecord removes an observation from the registry.
func (c *HTTPClient) DeleteRecord(ctx context.Context, serverID string) error {
	return c.do(ctx, http.MethodDelete, "/api/records/"+url.PathEscape(serverID), nil, nil)
}

// ChangesSince fetches registry-side changes after the given cursor. An
// empty cursor fetches everything.
func (c *HTTPClient) ChangesSince(ctx context.Context, cursor string) ([]RemoteRecord, string, error) {
	path := "/api/records/changes"
	if cursor != "" {
		path += "?since=" + url.QueryEscape(cursor)
	}
	var out changesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, "", err
	}
	return out.Records, out.Next, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetworkUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s %s: %v", domain.ErrNetworkUnavailable, method, path, err)
		}
	}
	return nil
}
