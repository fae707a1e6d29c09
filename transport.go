package matbridge

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// JSONSerializer encodes messages as JSON. This is the serializer for live
// engine sessions: the worker script decodes frames with the engine's
// jsondecode builtin.
type JSONSerializer struct{}

func (js JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (js JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// MsgpackSerializer encodes messages as MessagePack. Used for transcript
// files, where both ends are Go.
type MsgpackSerializer struct{}

func (ms MsgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (ms MsgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// frameBufSize is the largest payload served from the transport's buffer
// pool; bigger frames are allocated directly.
const frameBufSize = 8192

// FrameTransport sends and receives messages as 4-byte big-endian
// length-prefixed frames. The worker script implements the same framing on
// the engine side with fread/fwrite on its stdio streams.
type FrameTransport struct {
	reader io.ReadCloser
	writer io.WriteCloser
	bufs   sync.Pool
}

// NewFrameTransport creates a frame transport over the given pipe ends.
func NewFrameTransport(reader io.ReadCloser, writer io.WriteCloser) *FrameTransport {
	return &FrameTransport{
		reader: reader,
		writer: writer,
		bufs: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, frameBufSize)
				return &buf
			},
		},
	}
}

func (ft *FrameTransport) Send(data []byte) error {
	bufp := ft.bufs.Get().(*[]byte)
	header := (*bufp)[:4]
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	_, err := ft.writer.Write(header)
	ft.bufs.Put(bufp)
	if err != nil {
		return err
	}

	if _, err := ft.writer.Write(data); err != nil {
		return err
	}

	if flusher, ok := ft.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

func (ft *FrameTransport) Receive() ([]byte, error) {
	bufp := ft.bufs.Get().(*[]byte)
	defer ft.bufs.Put(bufp)

	header := (*bufp)[:4]
	if _, err := io.ReadFull(ft.reader, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)

	// Small frames reuse the pooled buffer; the payload is copied out so the
	// buffer can go back to the pool.
	if length <= frameBufSize {
		buf := (*bufp)[:length]
		if _, err := io.ReadFull(ft.reader, buf); err != nil {
			return nil, err
		}
		result := make([]byte, length)
		copy(result, buf)
		return result, nil
	}

	data := make([]byte, length)
	_, err := io.ReadFull(ft.reader, data)
	return data, err
}

func (ft *FrameTransport) Close() error {
	if err := ft.reader.Close(); err != nil {
		return err
	}
	return ft.writer.Close()
}

func (ft *FrameTransport) Flush() error {
	if flusher, ok := ft.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}
