package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient implements Client against an HTTP platform control API
// (the service-description and scale primitives of the hosting platform).
type HTTPClient struct {
	baseURL   string
	serviceID string
	apiKey    string
	client    *http.Client
}

// NewHTTPClient creates a platform client. The timeout bounds every call
// independently of any caller-imposed deadline, since the platform API can
// itself hang.
func NewHTTPClient(baseURL, serviceID, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:   baseURL,
		serviceID: serviceID,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type describeResponse struct {
	Desired int `json:"desired"`
	Running int `json:"running"`
}

// DescribeService queries the platform for the current replica counts of
// the managed service. A failed or timed-out query reports
// ErrPlatformUnavailable, never a zero state.
func (c *HTTPClient) DescribeService(ctx context.Context) (ServiceState, error) {
	url := fmt.Sprintf("%s/v1/services/%s", c.baseURL, c.serviceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ServiceState{}, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return ServiceState{}, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ServiceState{}, fmt.Errorf("%w: describe returned %d", ErrPlatformUnavailable, resp.StatusCode)
	}

	var body describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ServiceState{}, fmt.Errorf("%w: bad describe response: %v", ErrPlatformUnavailable, err)
	}
	if body.Desired < 0 || body.Running < 0 {
		return ServiceState{}, fmt.Errorf("%w: negative replica counts", ErrPlatformUnavailable)
	}

	return ServiceState{Desired: body.Desired, Running: body.Running}, nil
}

// ScaleService sets the desired replica count of the managed service
func (c *HTTPClient) ScaleService(ctx context.Context, desired int) error {
	url := fmt.Sprintf("%s/v1/services/%s/scale", c.baseURL, c.serviceID)

	payload, err := json.Marshal(map[string]int{"desired": desired})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScaleRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScaleRequestFailed, err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScaleRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		// Drain a little of the body for the log line; never forwarded to HTTP callers
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: scale to %d returned %d: %s", ErrScaleRequestFailed, desired, resp.StatusCode, snippet)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}
