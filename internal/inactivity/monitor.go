// Package inactivity logs the user out after a period without input, independent of
// token validity.
package inactivity

import (
	"context"
	"time"

	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Reason says why the monitor ended the session.
type Reason string

const (
	ReasonInactive     Reason = "inactivity"
	ReasonTokenExpired Reason = "token_expired"
	ReasonUser         Reason = "user"
)

type Config struct {
	// Timeout is the total idle time before logout, warning included.
	Timeout     time.Duration
	WarningLead time.Duration
	// Countdown is the length of the visible warning countdown.
	Countdown time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:     constants.InactivityTimeout,
		WarningLead: constants.InactivityWarningLead,
		Countdown:   constants.InactivityCountdown,
	}
}

func (c Config) idle() time.Duration {
	d := c.Timeout - c.WarningLead
	if d <= 0 {
		return c.Timeout
	}
	return d
}

// Callbacks run on the monitor goroutine and must not call back into the monitor.
type Callbacks struct {
	OnWarning func(remaining time.Duration)
	OnTick    func(remaining time.Duration)
	OnLogout  func(reason Reason)
}

type Option func(*Monitor)

func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithTokenCheck sets the check Stay uses to refuse resuming with an expired token.
func WithTokenCheck(expired func() bool) Option {
	return func(m *Monitor) { m.tokenExpired = expired }
}

type eventKind int

const (
	eventActivity eventKind = iota
	eventStay
	eventLogout
)

type event struct {
	kind eventKind
	ack  chan struct{}
}

type state int

const (
	stateActive state = iota
	stateWarning
)

// Monitor owns exactly one timer at a time: the idle timer, or the one-second tick of
// the warning countdown.
type Monitor struct {
	cfg          Config
	cb           Callbacks
	clock        clockwork.Clock
	tokenExpired func() bool

	events chan event
	done   chan struct{}
}

func New(cfg Config, cb Callbacks, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:          cfg,
		cb:           cb,
		clock:        clockwork.NewRealClock(),
		tokenExpired: func() bool { return false },
		events:       make(chan event),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the monitor until logout or ctx is done. It must be called exactly once.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.done)

	st := stateActive
	remaining := time.Duration(0)
	timer := m.clock.NewTimer(m.cfg.idle())
	defer func() { timer.Stop() }()

	rearm := func(d time.Duration) {
		timer.Stop()
		timer = m.clock.NewTimer(d)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-m.events:
			switch ev.kind {
			case eventActivity:
				// Input during the warning does not count; only Stay resumes.
				if st == stateActive {
					rearm(m.cfg.idle())
				}
			case eventStay:
				if st != stateWarning {
					break
				}
				if m.tokenExpired() {
					m.logout(ReasonTokenExpired)
					close(ev.ack)
					return nil
				}
				st = stateActive
				rearm(m.cfg.idle())
			case eventLogout:
				m.logout(ReasonUser)
				close(ev.ack)
				return nil
			}
			close(ev.ack)

		case <-timer.Chan():
			switch st {
			case stateActive:
				st = stateWarning
				remaining = m.cfg.Countdown
				logger.Debug("Inactivity warning", zap.Duration("remaining", remaining))
				if m.cb.OnWarning != nil {
					m.cb.OnWarning(remaining)
				}
			case stateWarning:
				remaining -= time.Second
				if remaining <= 0 {
					m.logout(ReasonInactive)
					return nil
				}
				if m.cb.OnTick != nil {
					m.cb.OnTick(remaining)
				}
			}
			timer = m.clock.NewTimer(time.Second)
		}
	}
}

// Activity records user input and restarts the idle countdown.
func (m *Monitor) Activity() { m.send(eventActivity) }

// Stay dismisses the warning, or logs out if the token expired meanwhile.
func (m *Monitor) Stay() { m.send(eventStay) }

func (m *Monitor) LogoutNow() { m.send(eventLogout) }

// Done is closed when Run returns.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// send waits until the event has been handled, so callers observe its effect.
func (m *Monitor) send(kind eventKind) {
	ev := event{kind: kind, ack: make(chan struct{})}
	select {
	case m.events <- ev:
	case <-m.done:
		return
	}
	select {
	case <-ev.ack:
	case <-m.done:
	}
}

func (m *Monitor) logout(reason Reason) {
	logger.Info("Inactivity monitor logging out", zap.String("reason", string(reason)))
	if m.cb.OnLogout != nil {
		m.cb.OnLogout(reason)
	}
}
