package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/loykin/sidekick/internal/manager"
)

// APIClient talks to a running sidekick daemon over its control API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Status fetches the composite service status.
func (c *APIClient) Status() (manager.Status, error) {
	var st manager.Status
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return st, fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, err
	}
	return st, nil
}

// Restart asks the daemon to restart the named service in place.
func (c *APIClient) Restart(name string) error {
	u := c.baseURL + "/restart"
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	return c.post(u)
}

// Stop triggers the ordered shutdown of both services and the daemon.
func (c *APIClient) Stop() error {
	return c.post(c.baseURL + "/stop")
}

func (c *APIClient) post(u string) error {
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("API error: %s", body.Error)
	}
	return fmt.Errorf("API error: status %d", resp.StatusCode)
}
