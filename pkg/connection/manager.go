package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoDialer is returned by NewManager without a DialFunc.
var ErrNoDialer = errors.New("dial function is required")

// State represents the link state.
type State uint8

const (
	// StateDisconnected indicates no link and no dial in progress.
	StateDisconnected State = iota

	// StateConnecting indicates the first dial is in progress.
	StateConnecting

	// StateConnected indicates an active link.
	StateConnected

	// StateReconnecting indicates the link was lost and redials are running.
	StateReconnecting

	// StateClosed indicates Run has returned.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc opens the link. The returned channel is closed when it goes down.
type DialFunc func(ctx context.Context) (done <-chan struct{}, err error)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Dial opens the link (required).
	Dial DialFunc

	// Backoff between redials. The zero value uses the defaults without jitter;
	// use DefaultBackoffConfig for jitter.
	Backoff BackoffConfig

	// DialTimeout bounds a single redial (default: 10s).
	DialTimeout time.Duration

	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)

	// OnRetry is called before waiting for the next redial, with the error
	// of the previous attempt (nil for the first redial after a loss).
	OnRetry func(attempt int, delay time.Duration, lastErr error)
}

// Manager keeps one link up until its context ends.
type Manager struct {
	config  ManagerConfig
	backoff *Backoff

	mu    sync.RWMutex
	state State
}

// NewManager creates a manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Dial == nil {
		return nil, ErrNoDialer
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Manager{
		config:  cfg,
		backoff: NewBackoff(cfg.Backoff),
	}, nil
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Run dials and keeps the link up until ctx ends. A failing first dial is
// returned as is; later losses are redialed without limit. Run returns nil
// when ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	m.setState(StateConnecting)
	done, err := m.config.Dial(ctx)
	if err != nil {
		m.setState(StateClosed)
		return err
	}
	m.setState(StateConnected)

	for {
		select {
		case <-ctx.Done():
			m.setState(StateClosed)
			return nil
		case <-done:
		}

		m.setState(StateReconnecting)
		if done, err = m.redial(ctx); err != nil {
			m.setState(StateClosed)
			return nil
		}
		m.setState(StateConnected)
	}
}

// redial loops until a dial succeeds or ctx ends.
func (m *Manager) redial(ctx context.Context) (<-chan struct{}, error) {
	var lastErr error
	for {
		delay := m.backoff.Next()
		if m.config.OnRetry != nil {
			m.config.OnRetry(m.backoff.Attempts(), delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		dialCtx, cancel := context.WithTimeout(ctx, m.config.DialTimeout)
		done, err := m.config.Dial(dialCtx)
		cancel()
		if err == nil {
			m.backoff.Reset()
			return done, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()

	if old != s && m.config.OnStateChange != nil {
		m.config.OnStateChange(old, s)
	}
}
