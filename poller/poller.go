// Package poller drives the client side of the bridge handshake: issue a
// state, show the hand-off target, poll for completion on a fixed cadence,
// and give up after an absolute timeout. The state machine mirrors what a
// browser client does, with explicit phases instead of ambient timer state.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval is the fixed cadence between session polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultTimeout is the advisory client-side limit on the whole
	// handshake. The server enforces its own expiry independently.
	DefaultTimeout = 3 * time.Minute
)

// Phase is the poller's position in the handshake lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIssuing
	PhaseAwaitingHandoff
	PhasePolling
	PhaseCompleted
	PhaseFailed
	PhaseTimedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIssuing:
		return "issuing"
	case PhaseAwaitingHandoff:
		return "awaiting-handoff"
	case PhasePolling:
		return "polling"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// Hooks are the poller's outward side effects. Nil hooks are skipped. Hooks
// run outside the poller's lock, on the scheduler's goroutine.
type Hooks struct {
	OnHandoff   func(deepLink string)           // Hand-off target is ready to display
	OnCompleted func(magicLink, userID string)  // Handshake resolved; follow the magic link
	OnFailed    func(err error)                 // Terminal failure; no redirect
	OnTimedOut  func()                          // Absolute timeout fired before completion
}

// Poller is a single handshake attempt. Start is idempotent; Stop cancels all
// timers and may be called at any time.
type Poller struct {
	api       API
	scheduler Scheduler
	hooks     Hooks
	origin    string
	pollEvery time.Duration
	timeout   time.Duration

	mu        sync.Mutex
	phase     Phase
	state     string
	completed bool
	pollTask  Handle
	deadline  Handle
}

// Option defines a function type to modify the Poller instance.
type Option func(*Poller)

// WithPollInterval overrides the poll cadence (primarily for testing)
func WithPollInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.pollEvery = d
	}
}

// WithTimeout overrides the absolute timeout (primarily for testing)
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

// New creates a poller for one handshake from the given web origin.
func New(api API, scheduler Scheduler, origin string, hooks Hooks, options ...Option) (*Poller, error) {
	if api == nil {
		return nil, errors.New("[poller.New] api is required")
	}
	if scheduler == nil {
		return nil, errors.New("[poller.New] scheduler is required")
	}
	if origin == "" {
		return nil, errors.New("[poller.New] origin is required")
	}

	p := &Poller{
		api:       api,
		scheduler: scheduler,
		hooks:     hooks,
		origin:    origin,
		pollEvery: DefaultPollInterval,
		timeout:   DefaultTimeout,
		phase:     PhaseIdle,
	}

	for _, opt := range options {
		opt(p)
	}

	return p, nil
}

// Phase returns the current phase.
func (p *Poller) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// State returns the state token of the running handshake, empty before issue.
func (p *Poller) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start issues a state token and begins polling. Calling Start on a poller
// that has already started is a no-op, so duplicate mounts cannot
// double-issue.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.phase != PhaseIdle {
		p.mu.Unlock()
		return nil
	}
	p.phase = PhaseIssuing
	p.mu.Unlock()

	issued, err := p.api.IssueState(ctx, p.origin)
	if err != nil {
		p.fail(errors.Wrap(err, "[Poller.Start] IssueState"))
		return err
	}

	p.mu.Lock()
	p.state = issued.State
	p.phase = PhaseAwaitingHandoff

	// Polling starts immediately, in parallel with displaying the hand-off
	// target.
	p.pollTask = p.scheduler.Every(p.pollEvery, func() { p.tick(ctx) })
	p.deadline = p.scheduler.After(p.timeout, func() { p.timedOut(ctx) })
	p.phase = PhasePolling
	p.mu.Unlock()

	if p.hooks.OnHandoff != nil {
		p.hooks.OnHandoff(issued.DeepLink)
	}
	return nil
}

// Stop cancels the poll and timeout timers without transitioning phase. It is
// the unmount path: safe in any phase, idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTimersLocked()
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if p.completed || p.phase != PhasePolling {
		p.mu.Unlock()
		return
	}
	state := p.state
	p.mu.Unlock()

	status, err := p.api.ResolveSession(ctx, state)

	p.mu.Lock()
	// A late response must not overwrite a completion already observed.
	if p.completed || p.phase != PhasePolling {
		p.mu.Unlock()
		return
	}

	if err != nil {
		p.phase = PhaseFailed
		p.stopTimersLocked()
		p.mu.Unlock()
		if p.hooks.OnFailed != nil {
			p.hooks.OnFailed(err)
		}
		return
	}

	if !status.Completed {
		p.mu.Unlock()
		return
	}

	p.completed = true
	p.phase = PhaseCompleted
	p.stopTimersLocked()
	p.mu.Unlock()

	if p.hooks.OnCompleted != nil {
		p.hooks.OnCompleted(status.MagicLink, status.UserID)
	}
}

func (p *Poller) timedOut(ctx context.Context) {
	p.mu.Lock()
	if p.completed || p.phase != PhasePolling {
		p.mu.Unlock()
		return
	}
	p.phase = PhaseTimedOut
	p.stopTimersLocked()
	state := p.state
	p.mu.Unlock()

	// Best-effort cleanup of the abandoned handshake; server-side expiry
	// still applies if this fails.
	if err := p.api.CancelState(ctx, state); err != nil {
		log.Debug().Err(err).Msg("auth state cleanup failed")
	}

	if p.hooks.OnTimedOut != nil {
		p.hooks.OnTimedOut()
	}
}

func (p *Poller) fail(err error) {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return
	}
	p.phase = PhaseFailed
	p.stopTimersLocked()
	p.mu.Unlock()

	if p.hooks.OnFailed != nil {
		p.hooks.OnFailed(err)
	}
}

func (p *Poller) stopTimersLocked() {
	if p.pollTask != nil {
		p.pollTask.Cancel()
		p.pollTask = nil
	}
	if p.deadline != nil {
		p.deadline.Cancel()
		p.deadline = nil
	}
}
