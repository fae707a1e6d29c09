package matbridge

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// SessionConfig configures a new engine session.
type SessionConfig struct {
	// Engine is the engine installation to launch. Nil means discover one
	// with NewEngineFromSystem when the session starts.
	Engine *Engine

	// Dir is the working directory for the engine process. The engine puts
	// its startup directory on the function search path, so pointing Dir at
	// a toolbox directory makes that toolbox callable.
	Dir string

	// Env holds additional environment variables for the engine process.
	Env map[string]string

	// Logger receives debug logging. Nil disables logging.
	Logger logrus.FieldLogger

	// Stderr receives engine output that is not a worker report.
	// Nil means os.Stderr.
	Stderr io.Writer

	// Serializer overrides the message encoding. Nil means JSON, which is
	// what the worker script speaks.
	Serializer Serializer

	// Transport overrides the wire transport. When set, no engine process
	// is launched; this is how replayed transcripts drive a session.
	Transport Transport

	// StartTimeout bounds the wait for the worker's ready report.
	// Zero means 30 seconds.
	StartTimeout time.Duration
}

func (c *SessionConfig) defaults() {
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = 30 * time.Second
	}
}

// Session is a live connection to an engine worker. It invokes named engine
// functions with positional arguments (Feval) and evaluates code snippets
// (Eval), correlating responses with requests by unique IDs.
//
// Session is safe for concurrent use by multiple goroutines: sends are
// serialized via an internal mutex and responses are routed by request ID,
// though the engine itself executes one request at a time.
type Session struct {
	// EngineVersion is the version string reported by the worker at startup.
	// Empty for transport-only sessions.
	EngineVersion string

	proc       *EngineProcess
	serializer Serializer
	transport  Transport
	logger     logrus.FieldLogger

	// mutex protects responseMap, running, and transport writes.
	mutex       sync.Mutex
	responseMap map[string]chan map[string]interface{}
	running     bool
}

// NewSession starts an engine session. Unless cfg.Transport is set, this
// launches the engine process and blocks until the worker reports ready.
func NewSession(cfg SessionConfig) (*Session, error) {
	cfg.defaults()

	s := &Session{
		serializer:  cfg.Serializer,
		logger:      cfg.Logger,
		responseMap: make(map[string]chan map[string]interface{}),
		running:     true,
	}

	if cfg.Transport != nil {
		s.transport = cfg.Transport
	} else {
		engine := cfg.Engine
		if engine == nil {
			var err error
			engine, err = NewEngineFromSystem()
			if err != nil {
				return nil, err
			}
		}

		proc, err := engine.startProcess(cfg.Dir, cfg.Env, cfg.Stderr)
		if err != nil {
			return nil, fmt.Errorf("error starting engine: %w", err)
		}

		// The worker reports ready on stderr before entering its frame loop.
		select {
		case report := <-proc.StatusChan:
			if report["status"] != "ready" {
				proc.Terminate()
				return nil, fmt.Errorf("unexpected worker status: %v", report["status"])
			}
			if v, ok := report["version"].(string); ok {
				s.EngineVersion = v
			}
		case engErr := <-proc.ErrorChan:
			proc.Terminate()
			return nil, engErr
		case <-time.After(cfg.StartTimeout):
			proc.Terminate()
			return nil, fmt.Errorf("timeout waiting for engine worker to start")
		}

		s.proc = proc
		s.transport = NewFrameTransport(proc.Stdout, proc.Stdin)
		s.logger.WithFields(logrus.Fields{
			"engine":  engine.Kind,
			"version": s.EngineVersion,
		}).Debugf("Engine session started")
	}

	go s.messageLoop()

	return s, nil
}

// messageLoop continuously reads messages from the worker and routes them to
// the pending request they answer.
func (s *Session) messageLoop() {
	for {
		s.mutex.Lock()
		running := s.running
		s.mutex.Unlock()
		if !running {
			break
		}

		frame, err := s.transport.Receive()
		if err != nil {
			if err == io.EOF {
				break
			}
			s.mutex.Lock()
			running = s.running
			s.mutex.Unlock()
			if !running {
				break
			}
			s.logger.Debugf("Error reading from engine: %v", err)
			continue
		}

		var message map[string]interface{}
		if err := s.serializer.Unmarshal(frame, &message); err != nil {
			s.logger.Debugf("Error decoding engine message: %v", err)
			continue
		}

		requestID, ok := message["request_id"].(string)
		if !ok {
			s.logger.Debugf("Engine message without request ID: %v", message)
			continue
		}

		s.mutex.Lock()
		if ch, exists := s.responseMap[requestID]; exists {
			ch <- message
			delete(s.responseMap, requestID)
		}
		s.mutex.Unlock()
	}
}

// sendMessage serializes and writes a single request.
func (s *Session) sendMessage(message map[string]interface{}) error {
	data, err := s.serializer.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.transport.Send(data); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	if err := s.transport.Flush(); err != nil {
		return fmt.Errorf("failed to flush request: %w", err)
	}
	return nil
}

// roundTrip sends a request and waits for its response. A zero timeout waits
// indefinitely; on timeout the pending request is abandoned.
func (s *Session) roundTrip(request map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	requestID := ulid.Make().String()
	request["request_id"] = requestID

	responseChan := make(chan map[string]interface{}, 1)
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil, fmt.Errorf("session is closed")
	}
	s.responseMap[requestID] = responseChan
	s.mutex.Unlock()

	if err := s.sendMessage(request); err != nil {
		s.mutex.Lock()
		delete(s.responseMap, requestID)
		s.mutex.Unlock()
		return nil, err
	}

	if timeout <= 0 {
		response, ok := <-responseChan
		if !ok {
			return nil, fmt.Errorf("session is closed")
		}
		return response, nil
	}

	select {
	case response, ok := <-responseChan:
		if !ok {
			return nil, fmt.Errorf("session is closed")
		}
		return response, nil
	case <-time.After(timeout):
		s.mutex.Lock()
		delete(s.responseMap, requestID)
		s.mutex.Unlock()
		return nil, fmt.Errorf("timeout waiting for engine response to %v", request["command"])
	}
}

// Feval invokes a named engine function with nargout output values.
// Arguments are converted per the package's marshalling rules; results come
// back decoded (scalars, []float64, Matrix, maps). An engine-side error is
// returned as an *EngineError, unmodified.
func (s *Session) Feval(function string, nargout int, args ...interface{}) ([]interface{}, error) {
	return s.FevalTimeout(0, function, nargout, args...)
}

// FevalTimeout is Feval with a per-call timeout. Zero waits indefinitely.
func (s *Session) FevalTimeout(timeout time.Duration, function string, nargout int, args ...interface{}) ([]interface{}, error) {
	enc, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("function", function).Debugf("Engine feval")
	response, err := s.roundTrip(map[string]interface{}{
		"command":  "feval",
		"function": function,
		"nargout":  nargout,
		"args":     enc,
	}, timeout)
	if err != nil {
		return nil, err
	}

	if errVal, ok := response["error"]; ok {
		return nil, engineErrorFromValue(errVal)
	}

	raw, _ := response["result"].([]interface{})
	results := make([]interface{}, len(raw))
	for i, item := range raw {
		results[i] = decodeValue(item)
	}
	return results, nil
}

// Eval evaluates engine code and returns the captured console output.
// State (variables, loaded paths) persists between Eval calls.
func (s *Session) Eval(code string) (string, error) {
	return s.EvalTimeout(0, code)
}

// EvalTimeout is Eval with a per-call timeout. Zero waits indefinitely.
func (s *Session) EvalTimeout(timeout time.Duration, code string) (string, error) {
	response, err := s.roundTrip(map[string]interface{}{
		"command": "eval",
		"code":    code,
	}, timeout)
	if err != nil {
		return "", err
	}

	if errVal, ok := response["error"]; ok {
		return "", engineErrorFromValue(errVal)
	}

	output, _ := response["output"].(string)
	return output, nil
}

// Close stops the session and terminates the engine process. The worker is
// asked to exit first; the process is then terminated regardless. Calls still
// waiting for a response fail with a session-closed error. Close is
// idempotent.
func (s *Session) Close() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.failPendingLocked()
	s.mutex.Unlock()

	// Best-effort exit request; the worker leaves its loop on receipt.
	exitReq, _ := s.serializer.Marshal(map[string]interface{}{
		"command":    "exit",
		"request_id": ulid.Make().String(),
	})
	s.mutex.Lock()
	s.transport.Send(exitReq)
	s.transport.Flush()
	s.mutex.Unlock()

	// Small delay to allow the exit request to be consumed.
	time.Sleep(50 * time.Millisecond)

	if s.proc != nil {
		err := s.proc.Terminate()
		s.transport.Close()
		return err
	}
	return s.transport.Close()
}

// Shutdown gracefully stops the session: the worker is asked to exit and the
// engine process is awaited. Use this instead of Close when the engine should
// finish flushing its own state.
func (s *Session) Shutdown() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.mutex.Unlock()

	_, err := s.roundTrip(map[string]interface{}{"command": "exit"}, 0)
	if err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	s.mutex.Lock()
	s.running = false
	s.failPendingLocked()
	s.mutex.Unlock()

	if s.proc != nil {
		err := s.proc.Wait()
		s.transport.Close()
		return err
	}
	return s.transport.Close()
}

// failPendingLocked closes the channels of calls still waiting for a
// response, making them return a session-closed error. Must be called with
// the mutex held; routing and failing both remove entries under the lock, so
// a channel is never closed while a send is possible.
func (s *Session) failPendingLocked() {
	for id, ch := range s.responseMap {
		close(ch)
		delete(s.responseMap, id)
	}
}
