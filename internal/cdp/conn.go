package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	rodcdp "github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// eventBuffer bounds how far the reader may run ahead of the consumer.
	eventBuffer = 256
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
)

var (
	// ErrClosed is returned for calls on a closed connection.
	ErrClosed = errors.New("cdp connection closed")
)

// Conn is a WebSocket session attached to a single target. Command framing
// is handled by rod's cdp client; Conn decodes the Runtime events it emits.
//
// Events are delivered in arrival order on the channel returned by Events,
// which is closed once the connection drops or is closed.
type Conn struct {
	ws     *wsConn
	client *rodcdp.Client
	logger *zap.Logger

	ctx    context.Context // cancelled when the connection is gone
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	events    chan Event
	done      chan struct{} // closed when event forwarding stops
	closing   chan struct{} // closed by Close
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, logger *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	c.ws = &wsConn{ws: ws, logger: logger, onError: c.fail}
	c.client = rodcdp.New().Start(c.ws)
	go c.forward()
	return c
}

// Events returns the channel of decoded Runtime events.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, if it has.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call sends a command and waits for its response. If result is non-nil the
// response payload is decoded into it.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	if c.ctx.Err() != nil {
		if err := c.Err(); err != nil {
			return err
		}
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	res, err := c.client.Call(ctx, "", method, params)
	if err != nil {
		if c.ctx.Err() != nil {
			if cerr := c.Err(); cerr != nil {
				return fmt.Errorf("%s: %w", method, cerr)
			}
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	if result != nil && len(res) > 0 {
		if err := json.Unmarshal(res, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// EnableRuntime enables the Runtime domain so console and exception events
// start flowing.
func (c *Conn) EnableRuntime(ctx context.Context) error {
	req := proto.RuntimeEnable{}
	return c.Call(ctx, req.ProtoReq(), req, nil)
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.ws.close()
	})
	<-c.done
	return err
}

// forward decodes the client's events onto c.events until the client stops.
func (c *Conn) forward() {
	defer close(c.done)
	defer close(c.events)
	defer c.cancel()

	source := c.client.Event()
	for msg := range source {
		ev, err := DecodeEvent(msg.Method, msg.Params)
		if err != nil {
			if !errors.Is(err, errUnhandledEvent) {
				c.logger.Warn("dropping malformed event", zap.String("method", msg.Method), zap.Error(err))
			}
			continue
		}

		select {
		case c.events <- ev:
		case <-c.closing:
			// The client blocks until its events are received.
			for range source {
			}
			return
		}
	}
}

func (c *Conn) fail(err error) {
	select {
	case <-c.closing:
		err = ErrClosed
	default:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Debug("cdp connection closed by peer")
		} else {
			c.logger.Debug("cdp connection lost", zap.Error(err))
		}
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}

	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// wsConn adapts a gorilla connection to rod's cdp.WebSocketable.
type wsConn struct {
	ws      *websocket.Conn
	logger  *zap.Logger
	onError func(error)

	writeMu sync.Mutex
}

// Send implements rodcdp.WebSocketable.
func (w *wsConn) Send(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.ws.WriteMessage(websocket.TextMessage, data)
}

// Read implements rodcdp.WebSocketable. Frames that are not protocol
// messages are dropped here, since the client treats them as fatal.
func (w *wsConn) Read() ([]byte, error) {
	for {
		_, data, err := w.ws.ReadMessage()
		if err != nil {
			w.onError(err)
			return nil, err
		}
		var head struct {
			ID     int             `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			Error  *rodcdp.Error   `json:"error"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			w.logger.Warn("dropping malformed cdp message", zap.Error(err))
			continue
		}
		return data, nil
	}
}

func (w *wsConn) close() error {
	_ = w.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.ws.Close()
}
