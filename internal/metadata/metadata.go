// Package metadata reads the Compute Engine metadata server. It is how the
// on-instance guard resolves its own identity and credentials without being
// told anything by the client side.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBase is the metadata endpoint reachable from inside an instance.
const DefaultBase = "http://metadata.google.internal/computeMetadata/v1"

// Client queries instance metadata. All calls require the
// "Metadata-Flavor: Google" header; the server rejects them otherwise.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a metadata client against the given base URL. An empty
// base selects the real metadata server.
func NewClient(base string) *Client {
	if base == "" {
		base = DefaultBase
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = 5 * time.Second
	retryClient.Logger = nil

	return &Client{
		base: strings.TrimRight(base, "/"),
		http: retryClient.StandardClient(),
	}
}

// InstanceName returns the name of the instance this process runs on.
func (c *Client) InstanceName(ctx context.Context) (string, error) {
	return c.get(ctx, "/instance/name")
}

// Zone returns the instance's zone. The server reports it as
// "projects/<number>/zones/<zone>"; only the final segment is returned.
func (c *Client) Zone(ctx context.Context) (string, error) {
	v, err := c.get(ctx, "/instance/zone")
	if err != nil {
		return "", err
	}
	parts := strings.Split(v, "/")
	return parts[len(parts)-1], nil
}

// ProjectID returns the project the instance belongs to.
func (c *Client) ProjectID(ctx context.Context) (string, error) {
	return c.get(ctx, "/project/project-id")
}

// InstanceAttribute returns a custom metadata attribute set at creation
// time, such as the guard's configured lifetime.
func (c *Client) InstanceAttribute(ctx context.Context, key string) (string, error) {
	return c.get(ctx, "/instance/attributes/"+key)
}

// AccessToken returns an OAuth2 access token for the instance's default
// service account. The guard uses it to authorize its delete-self request.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/instance/service-accounts/default/token")
	if err != nil {
		return "", err
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal([]byte(body), &tok); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("metadata server returned an empty access token")
	}
	return tok.AccessToken, nil
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata %s: %w (is this running on a compute instance?)", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("metadata %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}
