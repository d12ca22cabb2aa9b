package capture

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

// inboundBuffer bounds the queue between session pumps and the dispatcher.
const inboundBuffer = 1024

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the Manager settings. It is not modified after New.
type Config struct {
	// Filter selects which page targets are attached.
	Filter Filter
	// ReconcileInterval is how often targets are re-discovered while
	// connected (0 disables re-discovery).
	ReconcileInterval time.Duration
	// AttachTimeout bounds attaching to and enabling one target.
	AttachTimeout time.Duration
	// NoReconnect makes Connect return its first failure and leaves the
	// manager disconnected after all sessions are lost.
	NoReconnect bool

	// Reconnect backoff parameters.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterPercent  float64
}

// DefaultConfig returns the default manager settings.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 2 * time.Second,
		AttachTimeout:     10 * time.Second,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		JitterPercent:     DefaultJitterPercent,
	}
}

type sessionRecord struct {
	target  cdp.Target // guarded by Manager.mu
	session Session
}

type inboundMsg struct {
	rec      *sessionRecord
	event    cdp.Event
	detached bool
}

// Manager owns the debugging sessions for every selected target. It
// attaches on Connect, keeps the session set in line with the filter,
// reconnects with backoff after total loss, and forwards normalized events
// to its listeners.
type Manager struct {
	cfg       Config
	transport Transport
	logger    *zap.Logger

	ctx     context.Context // cancelled by Disconnect
	cancel  context.CancelFunc
	inbound chan inboundMsg

	listenersMu sync.RWMutex
	listeners   []Listener

	mu              sync.Mutex
	state           State
	sessions        map[string]*sessionRecord
	attaching       map[string]struct{}
	attempt         int
	reconnecting    bool
	shouldReconnect bool
	closed          bool
	dispatching     bool
	stopReconcile   context.CancelFunc
	wg              sync.WaitGroup
}

// New creates a Manager with no sessions. Unset timeouts and backoff
// delays take their DefaultConfig values.
func New(transport Transport, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = defaults.AttachTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:             cfg,
		transport:       transport,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		inbound:         make(chan inboundMsg, inboundBuffer),
		sessions:        make(map[string]*sessionRecord),
		attaching:       make(map[string]struct{}),
		shouldReconnect: !cfg.NoReconnect,
	}
}

// AddListener registers l for all future notifications.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Connect discovers and attaches to the selected targets. If the attempt
// fails and reconnection is enabled, Connect keeps retrying with backoff
// until it succeeds, ctx is done, or Disconnect is called. When another
// reconnection loop is already running, Connect leaves recovery to it and
// returns nil.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if !m.dispatching {
		m.dispatching = m.goLocked(m.dispatch)
	}
	if m.state == StateDisconnected {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	err := m.connectOnce(ctx)
	if err == nil {
		return nil
	}
	m.logger.Warn("failed to connect", zap.Error(err))

	m.mu.Lock()
	retry := m.shouldReconnect && !m.closed
	if !retry && m.state == StateConnecting {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if !retry {
		return err
	}
	return m.reconnect(ctx)
}

// Disconnect stops reconnection and re-discovery, closes every session and
// waits for the manager's goroutines. It never fails and may be called any
// number of times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.closed = true
	m.stopReconcileLocked()
	sessions := m.sessions
	m.sessions = make(map[string]*sessionRecord)
	m.state = StateDisconnected
	m.mu.Unlock()

	m.cancel()
	for id, rec := range sessions {
		if err := rec.session.Close(); err != nil {
			m.logger.Debug("error closing session", zap.String("target", id), zap.Error(err))
		}
	}
	m.wg.Wait()
}

// IsConnected reports whether at least one session is attached.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions) > 0
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the number of failed reconnect attempts since the last
// successful connect.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// IsReconnecting reports whether a reconnection loop is running.
func (m *Manager) IsReconnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnecting
}

// AttachedTargets returns a snapshot of the attached targets, ordered by ID.
func (m *Manager) AttachedTargets() []cdp.Target {
	m.mu.Lock()
	targets := make([]cdp.Target, 0, len(m.sessions))
	for _, rec := range m.sessions {
		targets = append(targets, rec.target)
	}
	m.mu.Unlock()
	slices.SortFunc(targets, func(a, b cdp.Target) int { return cmp.Compare(a.ID, b.ID) })
	return targets
}

// goLocked runs fn on a tracked goroutine unless the manager is closed.
// m.mu must be held.
func (m *Manager) goLocked(fn func()) bool {
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

// scope derives a context cancelled by either ctx or Disconnect.
func (m *Manager) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Manager) connectOnce(ctx context.Context) error {
	ctx, cancel := m.scope(ctx)
	defer cancel()

	targets, err := m.transport.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("%w: list targets: %w", ErrTransport, err)
	}
	m.notify("targets", func(l Listener) { l.OnTargets(PageTargets(targets)) })

	selected := ResolveTargets(targets, m.cfg.Filter)
	if len(selected) == 0 {
		return ErrNoSuitableTargets
	}

	errs := m.attachAll(ctx, selected)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if len(m.sessions) == 0 {
		m.mu.Unlock()
		joined := errors.Join(errs...)
		if joined == nil {
			joined = errors.New("no session attached")
		}
		return fmt.Errorf("%w: %w", ErrTransport, joined)
	}
	m.attempt = 0
	m.state = StateConnected
	m.startReconcileLocked()
	attached := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("connected", zap.Int("sessions", attached), zap.Int("selected", len(selected)))
	m.notify("connected", func(l Listener) { l.OnConnected() })
	return nil
}

// attachAll attaches to every target concurrently. A failure on one target
// does not affect the others.
func (m *Manager) attachAll(ctx context.Context, targets []cdp.Target) []error {
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			errs[i] = m.attach(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return slices.DeleteFunc(errs, func(err error) bool { return err == nil })
}

func (m *Manager) attach(ctx context.Context, target cdp.Target) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := m.sessions[target.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	if _, ok := m.attaching[target.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.attaching[target.ID] = struct{}{}
	m.mu.Unlock()

	actx, cancel := context.WithTimeout(ctx, m.cfg.AttachTimeout)
	defer cancel()

	sess, err := m.transport.Attach(actx, target)
	if err == nil {
		if err = sess.EnableRuntime(actx); err != nil {
			_ = sess.Close()
		}
	}

	m.mu.Lock()
	delete(m.attaching, target.ID)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("failed to attach to target",
			zap.String("target", target.ID),
			zap.String("url", target.URL),
			zap.Error(err))
		return fmt.Errorf("attach %s: %w", target.ID, err)
	}
	if m.closed {
		m.mu.Unlock()
		_ = sess.Close()
		return ErrShutdown
	}
	rec := &sessionRecord{target: target, session: sess}
	m.sessions[target.ID] = rec
	m.goLocked(func() { m.pump(rec) })
	m.mu.Unlock()

	m.logger.Info("attached to target",
		zap.String("target", target.ID),
		zap.String("title", target.Title),
		zap.String("url", target.URL))
	return nil
}

// pump forwards one session's events to the dispatcher, followed by a
// detach message once the session's event stream ends.
func (m *Manager) pump(rec *sessionRecord) {
	events := rec.session.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				m.send(inboundMsg{rec: rec, detached: true})
				return
			}
			if !m.send(inboundMsg{rec: rec, event: ev}) {
				return
			}
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) send(msg inboundMsg) bool {
	select {
	case m.inbound <- msg:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) dispatch() {
	for {
		select {
		case msg := <-m.inbound:
			if msg.detached {
				m.handleDetach(msg.rec)
			} else {
				m.handleEvent(msg)
			}
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) handleEvent(msg inboundMsg) {
	m.mu.Lock()
	target := msg.rec.target
	m.mu.Unlock()

	ev, err := Normalize(msg.event, target)
	if err != nil {
		m.logger.Warn("dropping event", zap.String("target", target.ID), zap.Error(err))
		return
	}
	m.notify("event", func(l Listener) { l.OnEvent(ev) })
}

func (m *Manager) handleDetach(rec *sessionRecord) {
	m.mu.Lock()
	id := rec.target.ID
	if cur, ok := m.sessions[id]; !ok || cur != rec {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	lost := m.lostAllLocked()
	m.mu.Unlock()

	m.logger.Info("target session ended", zap.String("target", id))
	_ = rec.session.Close()
	if lost {
		m.onLost()
	}
}

// lostAllLocked moves a connected manager with no sessions left to
// Disconnected. m.mu must be held.
func (m *Manager) lostAllLocked() bool {
	if len(m.sessions) > 0 || m.state != StateConnected {
		return false
	}
	m.state = StateDisconnected
	m.stopReconcileLocked()
	return true
}

func (m *Manager) onLost() {
	m.logger.Warn("all target sessions lost")
	m.notify("disconnected", func(l Listener) { l.OnDisconnected() })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldReconnect && !m.reconnecting {
		m.goLocked(func() { _ = m.reconnect(m.ctx) })
	}
}

// reconnect retries connectOnce with backoff until connected. Only one
// loop runs at a time; a second caller returns immediately.
func (m *Manager) reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || !m.shouldReconnect {
		m.mu.Unlock()
		return ErrShutdown
	}
	if m.reconnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.reconnecting = true
	m.state = StateReconnecting
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		if m.state == StateReconnecting {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		if m.closed || !m.shouldReconnect {
			m.mu.Unlock()
			return ErrShutdown
		}
		if m.state == StateConnected {
			m.mu.Unlock()
			return nil
		}
		attempt := m.attempt
		m.mu.Unlock()

		delay := Backoff(attempt, m.cfg.InitialBackoff, m.cfg.MaxBackoff, m.cfg.JitterPercent)
		m.logger.Info("reconnecting",
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.ctx.Done():
			timer.Stop()
			return ErrShutdown
		}

		err := m.connectOnce(ctx)
		if err == nil {
			return nil
		}
		m.mu.Lock()
		m.attempt++
		if m.state == StateDisconnected {
			m.state = StateReconnecting
		}
		m.mu.Unlock()
		m.logger.Debug("reconnect attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

// startReconcileLocked starts periodic re-discovery. m.mu must be held.
func (m *Manager) startReconcileLocked() {
	if m.stopReconcile != nil || m.cfg.ReconcileInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopReconcile = cancel
	m.goLocked(func() { m.reconcileLoop(ctx) })
}

// stopReconcileLocked stops periodic re-discovery. m.mu must be held.
func (m *Manager) stopReconcileLocked() {
	if m.stopReconcile != nil {
		m.stopReconcile()
		m.stopReconcile = nil
	}
}

func (m *Manager) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

// reconcile re-lists targets, attaches to new matches and detaches sessions
// whose target no longer matches the filter. Unaffected sessions are left
// alone.
func (m *Manager) reconcile(ctx context.Context) {
	targets, err := m.transport.ListTargets(ctx)
	if err != nil {
		m.logger.Debug("target discovery failed", zap.Error(err))
		return
	}
	m.notify("targets", func(l Listener) { l.OnTargets(PageTargets(targets)) })

	selected := ResolveTargets(targets, m.cfg.Filter)
	want := make(map[string]cdp.Target, len(selected))
	for _, t := range selected {
		want[t.ID] = t
	}

	m.mu.Lock()
	if m.closed || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	var stale []*sessionRecord
	for id, rec := range m.sessions {
		if t, ok := want[id]; ok {
			rec.target = t
			continue
		}
		stale = append(stale, rec)
		delete(m.sessions, id)
	}
	var fresh []cdp.Target
	for _, t := range selected {
		if _, ok := m.sessions[t.ID]; !ok {
			fresh = append(fresh, t)
		}
	}
	m.mu.Unlock()

	for _, rec := range stale {
		m.logger.Info("detaching target no longer matching filter",
			zap.String("target", rec.target.ID),
			zap.String("url", rec.target.URL))
		if err := rec.session.Close(); err != nil {
			m.logger.Debug("error closing session", zap.String("target", rec.target.ID), zap.Error(err))
		}
	}
	if len(fresh) > 0 {
		m.attachAll(ctx, fresh)
	}

	m.mu.Lock()
	lost := m.lostAllLocked()
	m.mu.Unlock()
	if lost {
		m.onLost()
	}
}

func (m *Manager) notify(name string, fn func(Listener)) {
	m.listenersMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		m.safeNotify(name, l, fn)
	}
}

func (m *Manager) safeNotify(name string, l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked",
				zap.String("notification", name),
				zap.Any("panic", r))
		}
	}()
	fn(l)
}
