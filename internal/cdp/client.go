// Package cdp is a small Chrome DevTools Protocol client: target discovery
// over the HTTP endpoint and per-target WebSocket sessions limited to the
// Runtime events used for console capture.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TargetTypePage is the target type of a regular browser tab.
const TargetTypePage = "page"

// Target describes an attachable unit reported by /json/list.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// Client talks to one browser debugging endpoint.
type Client struct {
	host   string
	port   int
	http   *http.Client
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewClient creates a client for the debugging endpoint at host:port.
func NewClient(host string, port int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		host: host,
		port: port,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{Proxy: nil, MaxIdleConns: 2},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the host:port this client connects to.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// ListTargets fetches every target the browser currently exposes.
func (c *Client) ListTargets(ctx context.Context) ([]Target, error) {
	url := "http://" + c.Addr() + "/json/list"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build target list request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode target list: %w", err)
	}
	return targets, nil
}

// Attach opens a debugging session to the given target.
func (c *Client) Attach(ctx context.Context, target Target) (*Conn, error) {
	wsURL := target.WebSocketDebuggerURL
	if wsURL == "" {
		wsURL = "ws://" + c.Addr() + "/devtools/page/" + target.ID
	}

	ws, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c.logger.Debug("attached to target",
		zap.String("target", target.ID),
		zap.String("url", target.URL))

	return newConn(ws, c.logger.With(zap.String("target", target.ID))), nil
}

// CloseIdleConnections releases pooled HTTP connections used for listing.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
