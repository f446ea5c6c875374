// Package codec provides the pluggable wire-format layer:
// RegisterCodec(scheme, codec) wires a scheme (the prefix of an endpoint URI
// like rapid://host:port) to an Encode/Decode pair.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cloudwego/gopkg/bufiox"

	"github.com/wolfhead/meridian/internal/iodesc"
	"github.com/wolfhead/meridian/internal/proto"
)

// ErrNeedMore is returned by Decode when the reader does not yet have a
// complete frame buffered; the caller should read more bytes and retry.
var ErrNeedMore = errors.New("codec: need more data")

// Codec encodes and decodes proto.Message values over a connection.
// Decode must distinguish "not enough bytes yet" (ErrNeedMore) from a
// genuine framing error, since the reactor's read handler re-invokes Decode
// every time more bytes arrive on a non-blocking socket.
type Codec interface {
	Encode(m proto.Message, w bufiox.Writer) error
	Decode(r bufiox.Reader) (proto.Message, error)
}

// Registry maps an endpoint scheme to the Codec that speaks it.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register wires scheme to codec. A later call with the same scheme
// replaces the earlier one.
func (r *Registry) Register(scheme string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[scheme] = c
}

// Lookup returns the codec registered for scheme, if any.
func (r *Registry) Lookup(scheme string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[scheme]
	return c, ok
}

const (
	headerSize  = 9 // 4-byte length + 1-byte direction + 4-byte correlation id
	maxFrameLen = 64 << 20
)

// LengthPrefixed is the default wire codec: a 4-byte big-endian length
// prefix, a 1-byte Direction, a 4-byte big-endian correlation id, and the
// payload. It is registered under the "meridian" scheme by the runtime and
// is the codec the echo sample and the runtime-level tests exercise.
type LengthPrefixed struct{}

func (LengthPrefixed) Encode(m proto.Message, w bufiox.Writer) error {
	// total is the whole frame including the 4-byte length prefix itself;
	// bodyLen (what goes on the wire as the prefix) excludes those 4 bytes.
	total := headerSize + len(m.Payload)
	bodyLen := total - 4

	buf, err := w.Malloc(total)
	if err != nil {
		return fmt.Errorf("codec: malloc frame: %w", err)
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(bodyLen))
	buf[4] = byte(m.Direction)
	binary.BigEndian.PutUint32(buf[5:9], uint32(m.CorrelationID))
	copy(buf[9:], m.Payload)
	return w.Flush()
}

func (LengthPrefixed) Decode(r bufiox.Reader) (proto.Message, error) {
	head, err := r.Peek(4)
	if err != nil {
		if err == io.EOF {
			return proto.Message{}, ErrNeedMore
		}
		return proto.Message{}, err
	}
	bodyLen := binary.BigEndian.Uint32(head)
	if bodyLen > maxFrameLen {
		return proto.Message{}, fmt.Errorf("codec: frame too large: %d bytes", bodyLen)
	}
	if bodyLen < 5 {
		return proto.Message{}, fmt.Errorf("codec: short frame body: %d bytes", bodyLen)
	}

	frame, err := r.Next(4 + int(bodyLen))
	if err != nil {
		if err == io.EOF {
			return proto.Message{}, ErrNeedMore
		}
		return proto.Message{}, err
	}

	body := frame[4:]
	msg := proto.PooledPayload(
		proto.Direction(body[0]),
		uint64(binary.BigEndian.Uint32(body[1:5])),
		iodesc.Descriptor{},
		body[5:],
	)
	return msg, nil
}
