package evserve

import (
	"context"
	"sync"
	"time"
)

// LifecycleState is C10's FSM state (§4.1).
type LifecycleState int32

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateStarted
	StateStopping
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Observer receives lifecycle notifications (§7 "observer contract").
// Grounded on badu-http/server_event_emitter.go's fan-out-with-isolation
// pattern: one observer's panic never takes down another's notification
// or the transition itself.
type Observer interface {
	OnStateChange(from, to LifecycleState)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(from, to LifecycleState)

func (f ObserverFunc) OnStateChange(from, to LifecycleState) { f(from, to) }

// lifecycle owns the FSM and the observer list.
type lifecycle struct {
	mu        sync.Mutex
	state     LifecycleState
	observers []Observer
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateStopped}
}

// AddObserver registers o; safe to call at any state.
func (l *lifecycle) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// State returns the current state.
func (l *lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func notifyObserver(o Observer, from, to LifecycleState) {
	defer func() {
		_ = recover()
	}()
	o.OnStateChange(from, to)
}

// Start drives STOPPED -> STARTING -> STARTED (§4.1 steps 1-6): validate
// and freeze Options, require at least one VHost, bind listeners, start
// the keep-alive sweeper, then mark STARTED. Per §4.1, start only fails
// fast from STOPPED with a configuration error — a failed Start always
// leaves the FSM back at STOPPED, never stuck mid-transition, so the
// caller can fix the problem and call Start again (and Stop is never
// required after a failed Start).
func (srv *Server) Start() error {
	if err := srv.lc.transitionAllowed(StateStarting, StateStopped); err != nil {
		return err
	}

	if err := srv.startLocked(); err != nil {
		_ = srv.lc.transitionAllowed(StateStopped, StateStarting)
		return err
	}

	return srv.lc.transitionAllowed(StateStarted, StateStarting)
}

// startLocked does the actual work of binding and spinning up a server
// already transitioned to STARTING; any error here is rolled back to
// STOPPED by the caller.
func (srv *Server) startLocked() error {
	if err := srv.opts.Validate(); err != nil {
		return err
	}
	if srv.vhosts.Len() == 0 {
		return ErrNoVHosts
	}
	srv.opts.Freeze()

	if err := srv.bindListeners(); err != nil {
		return err
	}

	if err := dropPrivileges(srv.opts.User); err != nil {
		srv.closeBoundListeners()
		return err
	}

	srv.keepAlive = newKeepAliveQueue(srv.opts.ConnectionTimeout)
	srv.admission = newAdmission(srv.opts.MaxConnections, srv.opts.ConnectionsPerIP)
	srv.clock = newClock()
	srv.stopCh = make(chan struct{})
	srv.sweepDone = make(chan struct{})
	go srv.sweepLoop()

	for _, ln := range srv.listeners {
		go srv.acceptLoop(ln)
	}

	return nil
}

// Stop drives STARTED -> STOPPING -> STOPPED (§4.1 steps 7-10): stop
// accepting new connections, signal the sweeper to stop, wait for
// in-flight connections to drain up to ShutdownTimeout, then force-close
// stragglers. Stop on a server that is already STOPPED is a no-op.
func (srv *Server) Stop(ctx context.Context) error {
	if srv.lc.State() == StateStopped {
		return nil
	}
	if err := srv.lc.transitionAllowed(StateStopping, StateStarted); err != nil {
		return err
	}

	for _, ln := range srv.listeners {
		_ = ln.Close()
	}
	close(srv.stopCh)
	<-srv.sweepDone
	srv.clock.Close()

	deadline := time.Now().Add(srv.opts.ShutdownTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	drained := srv.waitDrain(deadline)

	if err := srv.lc.transitionAllowed(StateStopped, StateStopping); err != nil {
		return err
	}
	if !drained {
		return ErrShutdownTimeout
	}
	return nil
}

// transitionAllowed moves from "from" to "to" if the current state
// matches "from", notifying every observer. Each observer call is
// isolated: a panicking observer is recovered and skipped, never
// aborting the transition or later observers — the "failure isolation"
// named in §4.1, grounded on badu-http/server_event_emitter.go.
func (l *lifecycle) transitionAllowed(to, from LifecycleState) error {
	l.mu.Lock()
	cur := l.state
	if cur != from {
		l.mu.Unlock()
		return ErrInvalidTransition
	}
	l.state = to
	observers := append([]Observer(nil), l.observers...)
	l.mu.Unlock()
	for _, o := range observers {
		notifyObserver(o, cur, to)
	}
	return nil
}

func (srv *Server) waitDrain(deadline time.Time) bool {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		if srv.activeConns() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			srv.forceCloseAll()
			return false
		}
		<-t.C
	}
}

func (srv *Server) sweepLoop() {
	defer close(srv.sweepDone)
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			srv.keepAlive.Sweep(time.Now())
		case <-srv.stopCh:
			return
		}
	}
}
