package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/kitchenbeat/internal/app"
	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Client talks to the game host HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the host at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Send posts one instrument message.
func (c *Client) Send(ctx context.Context, msg model.WireMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/events", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return &StatusError{Path: "/events", Status: resp.StatusCode}
	}
	return nil
}

// Command issues a session command and returns the resulting view.
func (c *Client) Command(ctx context.Context, cmd service.Command) (service.View, error) {
	path := "/session/" + string(cmd)
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return service.View{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return service.View{}, &StatusError{Path: path, Status: resp.StatusCode}
	}
	var v service.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return service.View{}, fmt.Errorf("decode session: %w", err)
	}
	return v, nil
}

// Session reads the current session view.
func (c *Client) Session(ctx context.Context) (service.View, error) {
	resp, err := c.do(ctx, http.MethodGet, "/session", nil)
	if err != nil {
		return service.View{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return service.View{}, &StatusError{Path: "/session", Status: resp.StatusCode}
	}
	var v service.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return service.View{}, fmt.Errorf("decode session: %w", err)
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
