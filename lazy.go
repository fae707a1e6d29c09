package matbridge

import (
	"sync"
	"time"
)

// Fevaler invokes named engine functions. Session and LazyEngine both
// implement it; wrappers like Glmnet accept it so they run against either.
type Fevaler interface {
	Feval(function string, nargout int, args ...interface{}) ([]interface{}, error)
}

// LazyEngine defers starting an engine session until the first call.
// Engine startup costs seconds, so code paths that may never reach the
// engine construct a LazyEngine up front and pay only when a call happens.
//
// All calls after the first forward to the same underlying Session.
// Close is idempotent and is a no-op when the session was never started.
type LazyEngine struct {
	cfg SessionConfig

	mu     sync.Mutex
	sess   *Session
	closed bool
}

// NewLazyEngine creates a lazy engine with the given session configuration.
// No process is launched until the first Feval, Eval, or Session call.
func NewLazyEngine(cfg SessionConfig) *LazyEngine {
	return &LazyEngine{cfg: cfg}
}

// Session returns the underlying session, starting it on first use.
func (l *LazyEngine) Session() (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionLocked()
}

func (l *LazyEngine) sessionLocked() (*Session, error) {
	if l.closed {
		return nil, errClosed
	}
	if l.sess != nil {
		return l.sess, nil
	}
	sess, err := NewSession(l.cfg)
	if err != nil {
		return nil, err
	}
	l.sess = sess
	return sess, nil
}

// Feval forwards to the underlying session, starting it if needed.
func (l *LazyEngine) Feval(function string, nargout int, args ...interface{}) ([]interface{}, error) {
	sess, err := l.Session()
	if err != nil {
		return nil, err
	}
	return sess.Feval(function, nargout, args...)
}

// FevalTimeout forwards to the underlying session, starting it if needed.
func (l *LazyEngine) FevalTimeout(timeout time.Duration, function string, nargout int, args ...interface{}) ([]interface{}, error) {
	sess, err := l.Session()
	if err != nil {
		return nil, err
	}
	return sess.FevalTimeout(timeout, function, nargout, args...)
}

// Eval forwards to the underlying session, starting it if needed.
func (l *LazyEngine) Eval(code string) (string, error) {
	sess, err := l.Session()
	if err != nil {
		return "", err
	}
	return sess.Eval(code)
}

// Close releases the underlying session. It is idempotent and returns nil
// when the session was never started.
func (l *LazyEngine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.sess == nil {
		return nil
	}
	return l.sess.Close()
}

// errClosed is returned for calls on a closed LazyEngine.
var errClosed = &EngineError{Identifier: "matbridge:closed", Message: "engine has been closed"}

var (
	defaultMu     sync.Mutex
	defaultEngine *LazyEngine
)

// DefaultEngine returns the package-level lazy engine used by the wrapper
// functions (e.g., Glmnet). It is created on first use with a zero
// SessionConfig, discovering an engine from the system when first called.
func DefaultEngine() *LazyEngine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = NewLazyEngine(SessionConfig{})
	}
	return defaultEngine
}

// SetDefaultEngine replaces the package-level lazy engine, returning the
// previous one (which the caller owns; close it if it was started).
func SetDefaultEngine(l *LazyEngine) *LazyEngine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultEngine
	defaultEngine = l
	return prev
}

// CloseDefaultEngine closes the package-level lazy engine, if any.
// Safe to call when no default engine was ever used.
func CloseDefaultEngine() error {
	defaultMu.Lock()
	l := defaultEngine
	defaultEngine = nil
	defaultMu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}
