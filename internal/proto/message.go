// Package proto defines the protocol message type shared by codecs,
// stages, and the client router. A Message is opaque to the runtime core:
// only a codec knows how to produce or consume its Payload.
package proto

import (
	"github.com/wolfhead/meridian/internal/bufpool"
	"github.com/wolfhead/meridian/internal/iodesc"
)

// Direction classifies a Message: request, response, or
// one-way (no reply expected).
type Direction uint8

const (
	DirectionRequest Direction = iota
	DirectionResponse
	DirectionOneWay
)

func (d Direction) String() string {
	switch d {
	case DirectionRequest:
		return "request"
	case DirectionResponse:
		return "response"
	case DirectionOneWay:
		return "one-way"
	default:
		return "unknown"
	}
}

// Message is a decoded protocol unit. It carries enough context (Source) to
// be routed back to the reactor that produced it for writing a reply,
// without a reverse lookup.
type Message struct {
	Direction Direction

	// CorrelationID identifies which in-flight request a response answers.
	// Zero for one-way messages and for requests that haven't been sent yet
	// (the client router assigns it).
	CorrelationID uint64

	// Source is the descriptor the message arrived on (or, for an outbound
	// request, the descriptor it will be written to).
	Source iodesc.Descriptor

	// Service names which registered handler should receive this message.
	// Unused for responses, which are instead matched by CorrelationID
	// against a client channel's in-flight table.
	Service string

	Payload []byte

	// pooled marks that Payload came from bufpool.Get and should be returned
	// by Release once the runtime is done dispatching this Message.
	pooled bool
}

// PooledPayload builds a Message whose Payload is a bufpool-backed copy of
// body, used by decode paths that want their payload allocation reused
// across frames instead of allocated fresh per Decode call.
func PooledPayload(direction Direction, correlationID uint64, source iodesc.Descriptor, body []byte) Message {
	buf := bufpool.Get(len(body))
	copy(buf, body)
	return Message{
		Direction:     direction,
		CorrelationID: correlationID,
		Source:        source,
		Payload:       buf,
		pooled:        true,
	}
}

// Release returns Payload to bufpool if it was obtained from there. Safe to
// call on a Message whose Payload wasn't pooled (a no-op). Callers must not
// use Payload after calling Release.
func (m *Message) Release() {
	if m.pooled {
		bufpool.Put(m.Payload)
		m.pooled = false
	}
}

// Reply builds a response Message carrying the same CorrelationID and
// Source as the request it answers, the common case for a service handler.
func (m Message) Reply(payload []byte) Message {
	return Message{
		Direction:     DirectionResponse,
		CorrelationID: m.CorrelationID,
		Source:        m.Source,
		Payload:       payload,
	}
}
