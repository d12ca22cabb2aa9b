package capture

import "github.com/standardbeagle/consolelog/internal/cdp"

// Listener receives manager notifications. Callbacks may run on different
// goroutines and must not call Manager.Disconnect.
type Listener interface {
	OnConnected()
	OnDisconnected()
	// OnTargets receives every page target on each discovery, before
	// filtering.
	OnTargets(pages []cdp.Target)
	OnEvent(ev Event)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Connected    func()
	Disconnected func()
	Targets      func(pages []cdp.Target)
	Event        func(ev Event)
}

func (l ListenerFuncs) OnConnected() {
	if l.Connected != nil {
		l.Connected()
	}
}

func (l ListenerFuncs) OnDisconnected() {
	if l.Disconnected != nil {
		l.Disconnected()
	}
}

func (l ListenerFuncs) OnTargets(pages []cdp.Target) {
	if l.Targets != nil {
		l.Targets(pages)
	}
}

func (l ListenerFuncs) OnEvent(ev Event) {
	if l.Event != nil {
		l.Event(ev)
	}
}
