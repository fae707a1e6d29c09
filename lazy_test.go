package matbridge

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport counts activity so tests can assert a session never started.
type stubTransport struct {
	sends    int32
	receives int32
}

func (s *stubTransport) Send([]byte) error { atomic.AddInt32(&s.sends, 1); return nil }
func (s *stubTransport) Receive() ([]byte, error) {
	atomic.AddInt32(&s.receives, 1)
	return nil, io.EOF
}
func (s *stubTransport) Close() error { return nil }
func (s *stubTransport) Flush() error { return nil }

func TestLazyEngineCloseWithoutUse(t *testing.T) {
	stub := &stubTransport{}
	lazy := NewLazyEngine(SessionConfig{Transport: stub})

	assert.NoError(t, lazy.Close())
	assert.NoError(t, lazy.Close())

	assert.Equal(t, int32(0), atomic.LoadInt32(&stub.sends))
	assert.Equal(t, int32(0), atomic.LoadInt32(&stub.receives))
}

func TestLazyEngineClosedRejectsCalls(t *testing.T) {
	lazy := NewLazyEngine(SessionConfig{Transport: &stubTransport{}})
	require.NoError(t, lazy.Close())

	_, err := lazy.Feval("anything", 1)
	require.Error(t, err)

	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, "matbridge:closed", engErr.Identifier)
}

func TestLazyEngineStartsSessionOnce(t *testing.T) {
	client, worker := newTransportPair()
	startFakeWorker(worker, func(req map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"result": []interface{}{3.0}}
	})

	lazy := NewLazyEngine(SessionConfig{Transport: client})
	defer lazy.Close()

	first, err := lazy.Session()
	require.NoError(t, err)
	second, err := lazy.Session()
	require.NoError(t, err)
	assert.Same(t, first, second)

	results, err := lazy.Feval("plus", 1, 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{3.0}, results)
}

func TestSetDefaultEngine(t *testing.T) {
	mine := NewLazyEngine(SessionConfig{Transport: &stubTransport{}})
	prev := SetDefaultEngine(mine)
	defer SetDefaultEngine(prev)

	assert.Same(t, mine, DefaultEngine())
}

func TestCloseDefaultEngine(t *testing.T) {
	prev := SetDefaultEngine(NewLazyEngine(SessionConfig{Transport: &stubTransport{}}))
	defer SetDefaultEngine(prev)

	assert.NoError(t, CloseDefaultEngine())

	// A fresh default is created on the next use.
	assert.NotNil(t, DefaultEngine())
	require.NoError(t, CloseDefaultEngine())
}
