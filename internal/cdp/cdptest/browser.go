// Package cdptest provides an in-process fake browser that speaks enough of
// the DevTools protocol for transport and end-to-end tests.
package cdptest

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

// Browser is a fake debugging endpoint serving /json/list and per-target
// WebSocket sessions.
type Browser struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	targets  []cdp.Target
	sessions map[string][]*session
	enabled  map[string]int
	failList bool
}

type session struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

// NewBrowser starts a fake browser. It is shut down when the test ends.
func NewBrowser(t testing.TB) *Browser {
	t.Helper()
	b := &Browser{
		sessions: make(map[string][]*session),
		enabled:  make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", b.handleList)
	mux.HandleFunc("/devtools/page/", b.handleSession)
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// Host returns the listening host.
func (b *Browser) Host() string {
	host, _, _ := net.SplitHostPort(b.server.Listener.Addr().String())
	return host
}

// Port returns the listening port.
func (b *Browser) Port() int {
	_, port, _ := net.SplitHostPort(b.server.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// AddTarget registers a target. Page targets get a WebSocket debugger URL.
func (b *Browser) AddTarget(target cdp.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target.Type == "" {
		target.Type = cdp.TargetTypePage
	}
	if target.WebSocketDebuggerURL == "" {
		target.WebSocketDebuggerURL = "ws://" + b.server.Listener.Addr().String() + "/devtools/page/" + target.ID
	}
	b.targets = append(b.targets, target)
}

// RemoveTarget drops a target from the listing and closes its sessions.
func (b *Browser) RemoveTarget(id string) {
	b.mu.Lock()
	kept := b.targets[:0]
	for _, t := range b.targets {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	b.targets = kept
	b.mu.Unlock()
	b.DropSessions(id)
}

// DropSessions closes every open session for the target without removing
// it from the listing, simulating a transport failure.
func (b *Browser) DropSessions(id string) {
	b.mu.Lock()
	sessions := b.sessions[id]
	delete(b.sessions, id)
	b.mu.Unlock()
	for _, s := range sessions {
		_ = s.ws.Close()
	}
}

// SetListFailure makes /json/list answer with an error.
func (b *Browser) SetListFailure(fail bool) {
	b.mu.Lock()
	b.failList = fail
	b.mu.Unlock()
}

// Enabled reports how many sessions enabled the Runtime domain on a target.
func (b *Browser) Enabled(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled[id]
}

// SessionCount reports the number of open sessions for a target.
func (b *Browser) SessionCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[id])
}

// Emit sends a raw protocol event to every session of a target.
func (b *Browser) Emit(id, method string, params any) {
	b.mu.Lock()
	sessions := append([]*session(nil), b.sessions[id]...)
	b.mu.Unlock()
	for _, s := range sessions {
		_ = s.send(map[string]any{"method": method, "params": params})
	}
}

// EmitRaw sends a text frame as is to every session of a target.
func (b *Browser) EmitRaw(id, frame string) {
	b.mu.Lock()
	sessions := append([]*session(nil), b.sessions[id]...)
	b.mu.Unlock()
	for _, s := range sessions {
		s.writeMu.Lock()
		_ = s.ws.WriteMessage(websocket.TextMessage, []byte(frame))
		s.writeMu.Unlock()
	}
}

// Console emits a Runtime.consoleAPICalled event with primitive arguments.
func (b *Browser) Console(id, method string, args ...any) {
	remote := make([]map[string]any, 0, len(args))
	for _, a := range args {
		remote = append(remote, map[string]any{"type": jsType(a), "value": a})
	}
	b.Emit(id, string(cdp.EventConsoleAPICalled), map[string]any{
		"type":               method,
		"args":               remote,
		"executionContextId": 1,
		"timestamp":          1,
	})
}

// Close stops the server and all sessions.
func (b *Browser) Close() {
	b.mu.Lock()
	all := b.sessions
	b.sessions = make(map[string][]*session)
	b.mu.Unlock()
	for _, sessions := range all {
		for _, s := range sessions {
			_ = s.ws.Close()
		}
	}
	b.server.Close()
}

func (b *Browser) handleList(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fail := b.failList
	targets := append([]cdp.Target{}, b.targets...)
	b.mu.Unlock()

	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(targets)
}

func (b *Browser) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/devtools/page/")

	b.mu.Lock()
	known := false
	for _, t := range b.targets {
		if t.ID == id {
			known = true
			break
		}
	}
	b.mu.Unlock()
	if !known {
		http.NotFound(w, r)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &session{ws: ws}

	b.mu.Lock()
	b.sessions[id] = append(b.sessions[id], s)
	b.mu.Unlock()

	defer b.forget(id, s)

	for {
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		if req.Method == "Runtime.enable" {
			b.mu.Lock()
			b.enabled[id]++
			b.mu.Unlock()
		}
		if err := s.send(map[string]any{"id": req.ID, "result": map[string]any{}}); err != nil {
			return
		}
	}
}

func (b *Browser) forget(id string, s *session) {
	_ = s.ws.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.sessions[id]
	for i, cur := range list {
		if cur == s {
			b.sessions[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.sessions[id]) == 0 {
		delete(b.sessions, id)
	}
}

func jsType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "object"
	case int, int64, float64:
		return "number"
	default:
		return "object"
	}
}
