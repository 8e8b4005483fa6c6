package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is the longest a dispatcher waits between cycles.
const DefaultIdleTimeout = 50 * time.Millisecond

// RunState is the dispatcher run loop state.
type RunState int

const (
	Idle RunState = iota
	Running
	Stopping
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Processor is driven by the dispatcher once per cycle.
type Processor interface {
	// Process services every session. It reports busy while any session
	// is still closing; the dispatcher does not stop until it is not.
	Process(now time.Time) (busy bool)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(now time.Time) bool

func (f ProcessorFunc) Process(now time.Time) bool { return f(now) }

// ErrRunning is returned by Run when the dispatcher is already running.
var ErrRunning = errors.New("dispatcher is already running")

// Dispatcher owns the handler slots of a communicator and runs its
// processing loop. Handlers run on the goroutine calling Run, one at a
// time.
type Dispatcher struct {
	hmu      sync.RWMutex
	handlers [numKinds][]HandlerFunc

	mu          sync.Mutex
	state       RunState
	stopPending bool
	posted *queue.Queue
	wake   chan struct{}

	idle time.Duration
	now  func() time.Time
	log  zerolog.Logger
}

// Option is a constructor option for Dispatcher.
type Option func(*Dispatcher)

// WithIdleTimeout sets the longest wait between cycles.
func WithIdleTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.idle = d
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l zerolog.Logger) Option { return func(d *Dispatcher) { d.log = l } }

// WithClock replaces time.Now as the cycle clock.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// New returns an idle Dispatcher with no handlers.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		posted: queue.New(),
		wake:   make(chan struct{}, 1),
		idle:   DefaultIdleTimeout,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register appends h to the handlers for kind. Handlers of a kind run in
// registration order.
func (d *Dispatcher) Register(kind Kind, h HandlerFunc) {
	if kind < 0 || kind >= numKinds {
		panic(fmt.Sprintf("dispatch: register %s", kind))
	}
	d.hmu.Lock()
	d.handlers[kind] = append(d.handlers[kind], h)
	d.hmu.Unlock()
}

func (d *Dispatcher) OnConnected(h HandlerFunc)         { d.Register(KindConnected, h) }
func (d *Dispatcher) OnDisconnected(h HandlerFunc)      { d.Register(KindDisconnected, h) }
func (d *Dispatcher) OnMessage(h HandlerFunc)           { d.Register(KindMessageArrived, h) }
func (d *Dispatcher) OnMessageSent(h HandlerFunc)       { d.Register(KindMessageSent, h) }
func (d *Dispatcher) OnError(h HandlerFunc)             { d.Register(KindError, h) }
func (d *Dispatcher) OnAfterAllProcessed(h HandlerFunc) { d.Register(KindAfterAllProcessed, h) }
func (d *Dispatcher) OnMessageTimeout(h HandlerFunc)    { d.Register(KindMessageTimeout, h) }
func (d *Dispatcher) OnAfterProcessed(h HandlerFunc)    { d.Register(KindAfterProcessed, h) }

// Dispatch delivers ev to its handlers on the calling goroutine.
//
// A handler that returns an error or panics does not stop delivery to
// the handlers after it; the failure is delivered to the error handlers
// instead. Failures of error handlers are only logged.
func (d *Dispatcher) Dispatch(ev Event) {
	d.hmu.RLock()
	hs := d.handlers[ev.Kind]
	d.hmu.RUnlock()

	if ev.Kind == KindError && len(hs) == 0 {
		d.log.Warn().Err(ev.Err).Uint64("session", ev.SessionID).Msg("unhandled error")
		return
	}
	for _, h := range hs {
		err := d.call(h, ev)
		if err == nil {
			continue
		}
		if ev.Kind == KindError {
			d.log.Error().Err(err).Uint64("session", ev.SessionID).Msg("error handler failed")
			continue
		}
		d.Dispatch(Event{Kind: KindError, SessionID: ev.SessionID, Remote: ev.Remote, Message: ev.Message, Err: err})
	}
}

func (d *Dispatcher) call(h HandlerFunc, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s handler panic: %v", ev.Kind, r)
		}
	}()
	return h(ev)
}

// Post queues ev for delivery on the next cycle. It is safe to call from
// any goroutine.
func (d *Dispatcher) Post(ev Event) {
	d.mu.Lock()
	d.posted.Add(ev)
	d.mu.Unlock()
	d.Wake()
}

// Wake asks for a processing cycle as soon as possible.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// State returns the run loop state.
func (d *Dispatcher) State() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop asks the dispatcher to stop. Run returns once p reports that no
// session is closing. Stop does not wait. A Stop while the dispatcher is
// not running applies to the next Run, which then stops after its first
// idle cycle.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	switch d.state {
	case Running:
		d.state = Stopping
	case Idle, Stopped:
		d.stopPending = true
	}
	d.mu.Unlock()
	d.Wake()
}

// Run runs processing cycles until Stop is called or ctx is done.
//
// Each cycle delivers posted events, calls p.Process and then delivers
// KindAfterAllProcessed. Cycles start when woken or after the idle
// timeout. Run may be called again after it returns.
func (d *Dispatcher) Run(ctx context.Context, p Processor) error {
	d.mu.Lock()
	if d.state != Idle && d.state != Stopped {
		st := d.state
		d.mu.Unlock()
		return errors.Wrapf(ErrRunning, "state %s", st)
	}
	d.state = Running
	if d.stopPending {
		d.state = Stopping
		d.stopPending = false
	}
	d.mu.Unlock()
	d.log.Debug().Dur("idle", d.idle).Msg("dispatcher running")

	ticker := time.NewTicker(d.idle)
	defer ticker.Stop()
	done := ctx.Done()
	for {
		// only a cycle that started while stopping may end the loop
		stopping := d.State() == Stopping
		d.drain()
		busy := p.Process(d.now())
		d.Dispatch(Event{Kind: KindAfterAllProcessed})

		d.mu.Lock()
		if stopping && !busy {
			d.state = Stopped
			d.mu.Unlock()
			d.drain()
			d.log.Debug().Msg("dispatcher stopped")
			return nil
		}
		d.mu.Unlock()

		select {
		case <-d.wake:
		case <-ticker.C:
		case <-done:
			done = nil
			d.Stop()
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.posted.Length() == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.posted.Remove().(Event)
		d.mu.Unlock()
		d.Dispatch(ev)
	}
}
