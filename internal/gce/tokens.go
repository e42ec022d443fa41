package gce

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/avkline/enginevm/internal/metadata"
)

// TokenSource yields OAuth2 access tokens for compute API requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Used in tests and when the
// caller manages credentials itself.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// GcloudTokenSource obtains tokens from the locally installed gcloud CLI,
// which is how operator workstations are already authenticated. Tokens are
// cached briefly so repeated API calls don't fork a process each time.
type GcloudTokenSource struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewGcloudTokenSource() *GcloudTokenSource {
	return &GcloudTokenSource{}
}

func (g *GcloudTokenSource) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.expires) {
		return g.token, nil
	}

	out, err := exec.CommandContext(ctx, "gcloud", "auth", "print-access-token").Output()
	if err != nil {
		return "", fmt.Errorf("gcloud auth print-access-token: %w (is gcloud installed and authenticated?)", err)
	}

	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", fmt.Errorf("gcloud returned an empty access token")
	}

	g.token = token
	g.expires = time.Now().Add(30 * time.Minute)
	return token, nil
}

// MetadataTokenSource obtains tokens from the instance metadata server.
// Used by the guard, whose only identity is the instance it runs on.
type MetadataTokenSource struct {
	meta *metadata.Client
}

func NewMetadataTokenSource(meta *metadata.Client) *MetadataTokenSource {
	return &MetadataTokenSource{meta: meta}
}

func (m *MetadataTokenSource) Token(ctx context.Context) (string, error) {
	return m.meta.AccessToken(ctx)
}
