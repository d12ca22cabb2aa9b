package capture

import (
	"context"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

// Transport discovers targets and attaches to them.
type Transport interface {
	ListTargets(ctx context.Context) ([]cdp.Target, error)
	Attach(ctx context.Context, target cdp.Target) (Session, error)
}

// Session is a live attachment to one target. Events must be closed when
// the session ends, whether by Close or by the remote side.
type Session interface {
	EnableRuntime(ctx context.Context) error
	Events() <-chan cdp.Event
	Close() error
}

// CDPTransport adapts a cdp.Client to Transport.
type CDPTransport struct {
	Client *cdp.Client
}

// NewCDPTransport wraps client.
func NewCDPTransport(client *cdp.Client) *CDPTransport {
	return &CDPTransport{Client: client}
}

// ListTargets implements Transport.
func (t *CDPTransport) ListTargets(ctx context.Context) ([]cdp.Target, error) {
	return t.Client.ListTargets(ctx)
}

// Attach implements Transport.
func (t *CDPTransport) Attach(ctx context.Context, target cdp.Target) (Session, error) {
	conn, err := t.Client.Attach(ctx, target)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
