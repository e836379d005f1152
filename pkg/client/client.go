package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/control"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

// Client provides interface to the agent's local control API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new control API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks if the agent is running
func (c *Client) Health() error {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/health", c.baseURL))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status code %d", resp.StatusCode)
	}

	return nil
}

// GetStatus retrieves the controller state
func (c *Client) GetStatus() (*control.StatusResponse, error) {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/status", c.baseURL))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var status control.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}

	return &status, nil
}

// Notify forwards a host event ("online" or "visible") and returns the
// resulting controller state
func (c *Client) Notify(event string) (string, error) {
	resp, err := c.httpClient.Post(fmt.Sprintf("%s/events/%s", c.baseURL, event), "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to send event: %s", bytes.TrimSpace(body))
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body["state"], nil
}

// Track asks the agent for one overt location report
func (c *Client) Track() (*types.Location, error) {
	resp, err := c.httpClient.Post(fmt.Sprintf("%s/track", c.baseURL), "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to track: %s", bytes.TrimSpace(body))
	}

	var loc types.Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// Register enrolls the device through the running agent
func (c *Client) Register(req control.RegisterRequest) (*types.RegistrationResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(
		fmt.Sprintf("%s/register", c.baseURL),
		"application/json",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to register: %s", bytes.TrimSpace(body))
	}

	var result types.RegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
