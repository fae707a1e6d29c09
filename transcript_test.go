package matbridge

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRecordAndReplay(t *testing.T) {
	var buf bytes.Buffer

	// Record a live exchange against a fake worker.
	client, worker := newTransportPair()
	startFakeWorker(worker, func(req map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"result": []interface{}{42.0}}
	})

	sess, err := NewSession(SessionConfig{Transport: NewRecorder(client, &buf)})
	require.NoError(t, err)

	recorded, err := sess.Feval("plus", 1, 40.0, 2.0)
	require.NoError(t, err)
	// Shutdown waits for the worker's exit acknowledgement, so the transcript
	// is complete before it is read back.
	require.NoError(t, sess.Shutdown())

	entries, err := ReadTranscript(&buf)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, DirSend, entries[0].Dir)
	assert.Equal(t, DirRecv, entries[1].Dir)

	// Replay the transcript through a fresh session. The live session uses
	// new request IDs, exercising the rewrite path.
	replaySess, err := NewSession(SessionConfig{Transport: NewReplayTransport(entries, nil)})
	require.NoError(t, err)
	defer replaySess.Close()

	replayed, err := replaySess.Feval("plus", 1, 40.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, recorded, replayed)
}

func TestReplayTransportRewritesRequestID(t *testing.T) {
	ser := JSONSerializer{}
	sendFrame, err := ser.Marshal(map[string]interface{}{
		"request_id": "RECORDED",
		"command":    "feval",
		"function":   "plus",
	})
	require.NoError(t, err)
	recvFrame, err := ser.Marshal(map[string]interface{}{
		"request_id": "RECORDED",
		"result":     []interface{}{7.0},
	})
	require.NoError(t, err)

	rt := NewReplayTransport([]TranscriptEntry{
		{Dir: DirSend, Frame: sendFrame},
		{Dir: DirRecv, Frame: recvFrame},
	}, nil)

	liveReq, err := ser.Marshal(map[string]interface{}{
		"request_id": "LIVE",
		"command":    "feval",
		"function":   "plus",
	})
	require.NoError(t, err)
	require.NoError(t, rt.Send(liveReq))

	frame, err := rt.Receive()
	require.NoError(t, err)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &response))
	assert.Equal(t, "LIVE", response["request_id"])
	assert.Equal(t, []interface{}{7.0}, response["result"])
}

func TestReplayTransportAcceptsSendsPastEnd(t *testing.T) {
	rt := NewReplayTransport(nil, nil)

	frame, err := JSONSerializer{}.Marshal(map[string]interface{}{
		"request_id": "LIVE",
		"command":    "exit",
	})
	require.NoError(t, err)
	assert.NoError(t, rt.Send(frame))
}

func TestReplayTransportReceiveAfterClose(t *testing.T) {
	rt := NewReplayTransport(nil, nil)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())

	_, err := rt.Receive()
	assert.Equal(t, io.EOF, err)
}
