package matbridge

import (
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Transcript direction markers.
const (
	// DirSend marks a frame sent to the engine.
	DirSend = "send"

	// DirRecv marks a frame received from the engine.
	DirRecv = "recv"
)

// TranscriptEntry is one recorded protocol frame.
type TranscriptEntry struct {
	// Dir is DirSend or DirRecv.
	Dir string `msgpack:"dir"`

	// Frame is the raw serialized message.
	Frame []byte `msgpack:"frame"`
}

// Recorder wraps a Transport and appends every frame that passes through it
// to a MessagePack transcript stream. Recorded transcripts replay with
// ReplayTransport, letting code built on matbridge run its full session path
// in tests without an engine installation.
type Recorder struct {
	inner Transport

	mu  sync.Mutex
	enc *msgpack.Encoder
}

// NewRecorder creates a recording wrapper around inner, writing transcript
// entries to w.
func NewRecorder(inner Transport, w io.Writer) *Recorder {
	return &Recorder{
		inner: inner,
		enc:   msgpack.NewEncoder(w),
	}
}

func (r *Recorder) record(dir string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(TranscriptEntry{Dir: dir, Frame: frame})
}

func (r *Recorder) Send(data []byte) error {
	if err := r.record(DirSend, data); err != nil {
		return fmt.Errorf("error recording frame: %w", err)
	}
	return r.inner.Send(data)
}

func (r *Recorder) Receive() ([]byte, error) {
	data, err := r.inner.Receive()
	if err != nil {
		return nil, err
	}
	if err := r.record(DirRecv, data); err != nil {
		return nil, fmt.Errorf("error recording frame: %w", err)
	}
	return data, nil
}

func (r *Recorder) Close() error {
	return r.inner.Close()
}

func (r *Recorder) Flush() error {
	return r.inner.Flush()
}

// ReadTranscript decodes all entries from a transcript stream.
func ReadTranscript(rd io.Reader) ([]TranscriptEntry, error) {
	dec := msgpack.NewDecoder(rd)
	var entries []TranscriptEntry
	for {
		var entry TranscriptEntry
		if err := dec.Decode(&entry); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
}

// ReplayTransport serves a recorded transcript as a Transport. Each Send
// consumes the next recorded send entry and queues the recorded responses
// that followed it; Receive delivers them in order.
//
// Live sessions generate fresh request IDs, so replayed responses have their
// request_id rewritten to the ID of the request that triggered them. Sends
// past the end of the transcript (e.g., the exit request during Close) are
// accepted and ignored.
type ReplayTransport struct {
	serializer Serializer

	mu      sync.Mutex
	entries []TranscriptEntry
	pos     int
	pending chan []byte
	closed  chan struct{}
	once    sync.Once
}

// NewReplayTransport creates a transport replaying the given entries.
// serializer must match the one the session uses (nil means JSON) so that
// request IDs can be rewritten.
func NewReplayTransport(entries []TranscriptEntry, serializer Serializer) *ReplayTransport {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	return &ReplayTransport{
		serializer: serializer,
		entries:    entries,
		pending:    make(chan []byte, 16),
		closed:     make(chan struct{}),
	}
}

func (rt *ReplayTransport) Send(data []byte) error {
	var request map[string]interface{}
	if err := rt.serializer.Unmarshal(data, &request); err != nil {
		return fmt.Errorf("error decoding request: %w", err)
	}
	liveID, _ := request["request_id"].(string)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	// Skip to the next recorded send; drained shutdown traffic past the end
	// of the transcript is accepted silently.
	for rt.pos < len(rt.entries) && rt.entries[rt.pos].Dir != DirSend {
		rt.pos++
	}
	if rt.pos >= len(rt.entries) {
		return nil
	}
	rt.pos++

	for rt.pos < len(rt.entries) && rt.entries[rt.pos].Dir == DirRecv {
		frame, err := rt.rewriteID(rt.entries[rt.pos].Frame, liveID)
		if err != nil {
			return err
		}
		rt.pending <- frame
		rt.pos++
	}
	return nil
}

// rewriteID patches a recorded response to answer the live request.
func (rt *ReplayTransport) rewriteID(frame []byte, liveID string) ([]byte, error) {
	if liveID == "" {
		return frame, nil
	}
	var response map[string]interface{}
	if err := rt.serializer.Unmarshal(frame, &response); err != nil {
		return nil, fmt.Errorf("error decoding recorded response: %w", err)
	}
	response["request_id"] = liveID
	return rt.serializer.Marshal(response)
}

func (rt *ReplayTransport) Receive() ([]byte, error) {
	select {
	case frame := <-rt.pending:
		return frame, nil
	case <-rt.closed:
		return nil, io.EOF
	}
}

func (rt *ReplayTransport) Close() error {
	rt.once.Do(func() { close(rt.closed) })
	return nil
}

func (rt *ReplayTransport) Flush() error {
	return nil
}
