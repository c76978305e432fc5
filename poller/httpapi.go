package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const defaultRequestTimeout = 10 * time.Second

// Client implements API over the bridge server's HTTP endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an API client for the bridge server at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) IssueState(ctx context.Context, origin string) (*IssuedState, error) {
	var resp struct {
		Success     bool   `json:"success"`
		State       string `json:"state"`
		RedirectURL string `json:"redirect_url"`
		Error       string `json:"error"`
	}

	body := map[string]string{"initiating_host_origin": origin}
	if err := c.postJSON(ctx, "/auth/state", body, &resp); err != nil {
		return nil, errors.Wrap(err, "[Client.IssueState]")
	}
	if !resp.Success {
		return nil, errors.Errorf("[Client.IssueState] server error: %s", resp.Error)
	}

	return &IssuedState{State: resp.State, DeepLink: resp.RedirectURL}, nil
}

func (c *Client) ResolveSession(ctx context.Context, state string) (*SessionStatus, error) {
	endpoint := fmt.Sprintf("%s/auth/session?state=%s", c.baseURL, url.QueryEscape(state))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ResolveSession] NewRequest")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ResolveSession] Do")
	}
	defer func() { _ = httpResp.Body.Close() }()

	var resp struct {
		Success   bool   `json:"success"`
		Completed bool   `json:"completed"`
		MagicLink string `json:"magic_link"`
		UserID    string `json:"user_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "[Client.ResolveSession] decode")
	}

	// 202 is a pending poll, not a failure
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		return nil, errors.Errorf("[Client.ResolveSession] status %d: %s", httpResp.StatusCode, resp.Error)
	}

	return &SessionStatus{
		Completed: resp.Completed,
		MagicLink: resp.MagicLink,
		UserID:    resp.UserID,
	}, nil
}

func (c *Client) CancelState(ctx context.Context, state string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.postJSON(ctx, "/auth/state/delete", map[string]string{"state": state}, &resp); err != nil {
		return errors.Wrap(err, "[Client.CancelState]")
	}
	if !resp.Success {
		return errors.Errorf("[Client.CancelState] server error: %s", resp.Error)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, into any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "Do")
	}
	defer func() { _ = resp.Body.Close() }()

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(into), "decode")
}
