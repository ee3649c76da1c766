package connector

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

// EventKind enumerates the notifications a Transport delivers.
type EventKind int

const (
	EventConnected EventKind = iota
	EventText
	EventBinary
	EventPing
	EventPong
	EventError
	// EventDisconnected indicates the peer closed the connection or the connection was lost.
	EventDisconnected
	// EventCancelled indicates the connection was closed locally with Disconnect.
	EventCancelled
	EventViabilityChanged
	EventReconnectSuggested
)

var eventKindNames = map[EventKind]string{
	EventConnected:          "connected",
	EventText:               "text",
	EventBinary:             "binary",
	EventPing:               "ping",
	EventPong:               "pong",
	EventError:              "error",
	EventDisconnected:       "disconnected",
	EventCancelled:          "cancelled",
	EventViabilityChanged:   "viability",
	EventReconnectSuggested: "reconnect",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a single notification from a Transport. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind
	// Data holds the frame payload for EventText/EventBinary and the control payload for
	// EventPing/EventPong.
	Data []byte
	// Header holds the server's handshake response headers for EventConnected.
	Header http.Header
	// Err is set for EventError and, if the connection failed, EventDisconnected.
	Err error
	// Code and Reason describe the close frame for EventDisconnected.
	Code   int
	Reason string
	// Flag carries the value of EventViabilityChanged and EventReconnectSuggested.
	Flag bool
}

// Terminal returns true if no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == EventDisconnected || e.Kind == EventCancelled
}

// BufferSize is the number of transport events that can be queued.
const BufferSize = 32

// MaxMessageLength caps the byte-length of frames that transports must accept.
const MaxMessageLength = 100000

// CloseNormalClosure is the close code sent by a peer that ends the connection deliberately.
const CloseNormalClosure = websocket.CloseNormalClosure

//go:generate mockgen -destination=../../mocks/transport.go -package=mocks -mock_names Transport=Transport . Transport

// Transport owns one connection to a streaming endpoint.
type Transport interface {
	// Connect starts opening the connection and returns immediately. The outcome is reported on
	// Events: EventConnected on success, otherwise EventError followed by EventDisconnected (or
	// EventCancelled if Disconnect was called first).
	Connect(ctx context.Context)

	// Events returns the channel on which the Transport reports activity, in the order it
	// occurred. The channel is closed after a terminal event. Consumers must drain it.
	Events() <-chan Event

	// SendText writes a text frame.
	SendText(ctx context.Context, data []byte) error

	// SendPong writes a pong control frame carrying payload.
	SendPong(payload []byte) error

	// Disconnect closes the connection, cancelling Connect if it's still in progress.
	//
	// Repeated calls to Disconnect() must be idempotent.
	Disconnect()
}

var ErrNotConnected = errors.New("transport not connected")
