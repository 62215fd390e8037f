package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aldervik/lumen/internal/logging"
)

// DefaultTimeout is the bounded timeout for every device HTTP call. A call
// that exceeds it is treated as "device offline".
const DefaultTimeout = 10 * time.Second

// Client is an HTTP client for one light's control API, scoped to the
// device's IP address.
type Client struct {
	// BaseURL is the base URL for the device (e.g. "http://192.168.1.50")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	ip string
}

// NewClient creates a client for the light at ip (port 80).
func NewClient(ip string) *Client {
	return &Client{
		BaseURL:    fmt.Sprintf("http://%s", ip),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		ip:         ip,
	}
}

// NewClientWithURL creates a client with a full base URL. Used in tests
// against httptest servers.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		ip:         strings.TrimPrefix(baseURL, "http://"),
	}
}

// SetTimeout sets the HTTP request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// IP returns the device address this client talks to.
func (c *Client) IP() string {
	return c.ip
}

// do performs one request and returns the response body. Non-2xx statuses
// and transport failures come back as classified *DeviceError values.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	logging.LogHTTPCall(c.ip, method, path, err)
	if err != nil {
		return nil, classifyTransportError(fmt.Sprintf("%s %s failed", method, path), err, c.ip)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError("failed to read response body", err, c.ip)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, fmt.Sprintf("%s %s returned status %d", method, path, resp.StatusCode), c.ip)
	}

	return data, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newParseError(fmt.Sprintf("failed to parse %s response", path), err, c.ip)
	}
	return nil
}

// Online performs the reachability check (GET /online).
func (c *Client) Online(ctx context.Context) (*OnlineStatus, error) {
	var status OnlineStatus
	if err := c.getJSON(ctx, PathOnline, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CheckConnection reports whether the device answered the online check.
func (c *Client) CheckConnection(ctx context.Context) bool {
	_, err := c.Online(ctx)
	return err == nil
}

// Light returns the current light state (GET /light).
func (c *Client) Light(ctx context.Context) (*LightStatus, error) {
	var status LightStatus
	if err := c.getJSON(ctx, PathLight, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Toggle flips the light and returns the new state (PUT /toggle). The
// firmware answers with a plain-text body ("on" or "off"), not JSON.
func (c *Client) Toggle(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodPut, PathToggle, nil)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(string(data))), nil
}

// GetFirmwareInfo returns firmware metadata (GET /ota/firmware-info).
func (c *Client) GetFirmwareInfo(ctx context.Context) (*FirmwareInfo, error) {
	var info FirmwareInfo
	if err := c.getJSON(ctx, PathFirmwareInfo, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StartUpdate asks the device to begin a firmware rollout from firmwareURL
// (POST /ota/update).
func (c *Client) StartUpdate(ctx context.Context, firmwareURL string) (*UpdateResponse, error) {
	if firmwareURL == "" {
		return nil, fmt.Errorf("firmware URL is empty")
	}

	body, err := json.Marshal(UpdateRequest{URL: firmwareURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, PathOTAUpdate, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp UpdateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, newParseError("failed to parse update response", err, c.ip)
	}
	return &resp, nil
}

// GetProgress returns the current rollout progress (GET /ota/progress).
func (c *Client) GetProgress(ctx context.Context) (*Progress, error) {
	var progress Progress
	if err := c.getJSON(ctx, PathOTAProgress, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}
