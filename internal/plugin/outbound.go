package plugin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrHostNotAllowed is returned when a plugin requests an outbound call to
// a host not present in its manifest's derived allowlist.
type ErrHostNotAllowed struct {
	Host string
}

func (e *ErrHostNotAllowed) Error() string {
	return fmt.Sprintf("plugin: outbound host %q not in capability allowlist", e.Host)
}

// OutboundProxy performs HTTP calls on a plugin's behalf. A plugin never
// receives raw network access or credentials; it only ever sees the
// response body the host chooses to hand back.
type OutboundProxy struct {
	Client *http.Client
}

// NewOutboundProxy builds an OutboundProxy with a bounded-timeout client.
func NewOutboundProxy() *OutboundProxy {
	return &OutboundProxy{Client: &http.Client{Timeout: 15 * time.Second}}
}

// Post issues a POST to rawURL with body on behalf of a plugin whose
// manifest grants access to allowedHosts. The call is rejected before any
// network activity if rawURL's host isn't explicitly allowed.
func (p *OutboundProxy) Post(ctx context.Context, allowedHosts []string, rawURL string, body []byte) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("plugin: invalid outbound URL: %w", err)
	}
	if !hostAllowed(u.Hostname(), allowedHosts) {
		return nil, &ErrHostNotAllowed{Host: u.Hostname()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("plugin: build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plugin: outbound request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("plugin: read outbound response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("plugin: outbound request returned %s", resp.Status)
	}
	return data, nil
}

func hostAllowed(host string, allowed []string) bool {
	for _, h := range allowed {
		if h == host {
			return true
		}
	}
	return false
}
