package matbridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeWorker runs a protocol worker on the given transport. handle maps
// a decoded request to the response body; request_id correlation is added
// here. The worker stops on an exit request or transport error.
func startFakeWorker(tr Transport, handle func(req map[string]interface{}) map[string]interface{}) {
	go func() {
		for {
			frame, err := tr.Receive()
			if err != nil {
				return
			}
			var req map[string]interface{}
			if err := json.Unmarshal(frame, &req); err != nil {
				return
			}
			if req["command"] == "exit" {
				// The real worker acknowledges exit before leaving its loop.
				ack := map[string]interface{}{
					"request_id": req["request_id"],
					"status":     "exit",
				}
				if data, err := json.Marshal(ack); err == nil {
					_ = tr.Send(data)
				}
				return
			}
			resp := handle(req)
			if resp == nil {
				continue
			}
			resp["request_id"] = req["request_id"]
			data, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := tr.Send(data); err != nil {
				return
			}
		}
	}()
}

// newFakeSession wires a session to an in-memory fake worker.
func newFakeSession(t *testing.T, handle func(req map[string]interface{}) map[string]interface{}) *Session {
	t.Helper()

	client, worker := newTransportPair()
	startFakeWorker(worker, handle)

	sess, err := NewSession(SessionConfig{Transport: client})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestSessionFevalDecodesResults(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		if req["command"] != "feval" || req["function"] != "magic" {
			return map[string]interface{}{"error": map[string]interface{}{"message": "unexpected request"}}
		}
		return map[string]interface{}{
			"result": []interface{}{
				map[string]interface{}{
					"mx":   "double",
					"size": []interface{}{2.0, 2.0},
					"data": []interface{}{4.0, 1.0, 3.0, 2.0},
				},
			},
		}
	})

	results, err := sess.Feval("magic", 1, 2.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Matrix{Rows: 2, Cols: 2, Data: []float64{4, 1, 3, 2}}, results[0])
}

func TestSessionFevalSendsEncodedArguments(t *testing.T) {
	var gotArgs []interface{}
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		gotArgs, _ = req["args"].([]interface{})
		return map[string]interface{}{"result": []interface{}{}}
	})

	_, err := sess.Feval("zeros", 0, []float64{1, 2}, Empty())
	require.NoError(t, err)

	require.Len(t, gotArgs, 2)

	first, ok := gotArgs[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "double", first["mx"])
	assert.Equal(t, []interface{}{2.0, 1.0}, first["size"])
	assert.Equal(t, []interface{}{1.0, 2.0}, first["data"])

	second, ok := gotArgs[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "empty", second["mx"])
}

func TestSessionFevalPropagatesEngineError(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"identifier": "Octave:undefined-function",
				"message":    "'nope' undefined",
				"stack": []interface{}{
					map[string]interface{}{"file": "worker.m", "name": "worker_feval", "line": 10.0},
				},
			},
		}
	})

	_, err := sess.Feval("nope", 1)
	require.Error(t, err)

	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, "Octave:undefined-function", engErr.Identifier)
	assert.Equal(t, "'nope' undefined", engErr.Message)
	require.Len(t, engErr.Stack, 1)
	assert.Equal(t, "worker_feval", engErr.Stack[0].Name)
}

func TestSessionEvalReturnsOutput(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		if req["command"] != "eval" || req["code"] != "disp(1+1)" {
			return map[string]interface{}{"error": map[string]interface{}{"message": "unexpected request"}}
		}
		return map[string]interface{}{"output": "2\n"}
	})

	out, err := sess.Eval("disp(1+1)")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestSessionFevalTimeout(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		time.Sleep(200 * time.Millisecond)
		return map[string]interface{}{"result": []interface{}{}}
	})

	_, err := sess.FevalTimeout(20*time.Millisecond, "slow", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestSessionCloseIdempotent(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"result": []interface{}{}}
	})

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())

	_, err := sess.Feval("anything", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestSessionCorrelatesConcurrentResponses(t *testing.T) {
	client, worker := newTransportPair()

	const calls = 8

	// Collect every request first and reply in reverse order, so responses
	// can only reach the right caller through request ID matching.
	go func() {
		pending := make([]map[string]interface{}, 0, calls)
		for len(pending) < calls {
			frame, err := worker.Receive()
			if err != nil {
				return
			}
			var req map[string]interface{}
			if err := json.Unmarshal(frame, &req); err != nil {
				return
			}
			pending = append(pending, req)
		}
		for i := len(pending) - 1; i >= 0; i-- {
			req := pending[i]
			args, _ := req["args"].([]interface{})
			resp := map[string]interface{}{
				"request_id": req["request_id"],
				"result":     []interface{}{args[0]},
			}
			data, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := worker.Send(data); err != nil {
				return
			}
		}
		// Consume the exit request from Close.
		worker.Receive()
	}()

	sess, err := NewSession(SessionConfig{Transport: client})
	require.NoError(t, err)
	defer sess.Close()

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			results, err := sess.Feval("identity", 1, v)
			if !assert.NoError(t, err) {
				return
			}
			if assert.Len(t, results, 1) {
				assert.Equal(t, v, results[0])
			}
		}(float64(i))
	}
	wg.Wait()
}

func TestSessionShutdown(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"result": []interface{}{}}
	})

	require.NoError(t, sess.Shutdown())

	// Idempotent once stopped; Close on a stopped session is also a no-op.
	assert.NoError(t, sess.Shutdown())
	assert.NoError(t, sess.Close())

	_, err := sess.Feval("anything", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestSessionCloseFailsPendingCalls(t *testing.T) {
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		return nil // never answer
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.Feval("hang", 1)
		errCh <- err
	}()

	// Let the request get registered before closing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, sess.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	case <-time.After(2 * time.Second):
		t.Fatal("pending call still blocked after close")
	}
}

func TestSessionFevalUnsupportedArgument(t *testing.T) {
	called := false
	sess := newFakeSession(t, func(req map[string]interface{}) map[string]interface{} {
		called = true
		return map[string]interface{}{"result": []interface{}{}}
	})

	_, err := sess.Feval("f", 1, struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported argument type")
	assert.False(t, called)
}
