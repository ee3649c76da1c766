package protocol

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// Fatal returns true if the Error ends the stream that produced it. Non-fatal errors are
	// reported to the caller but the stream keeps delivering events.
	Fatal() bool

	// Temporary returns true if the Error might be the result of a transient condition. For
	// example, the streaming server reports an error when the vehicle goes to sleep, and a new
	// stream opened a few minutes later may succeed.
	Temporary() bool
}

var (
	// ErrMissingCredential indicates no OAuth access token was available when the stream was
	// opened. No connection is attempted.
	ErrMissingCredential = NewError("streaming requires an OAuth access token", true, false)
	// ErrVehicleNotFound indicates the account's vehicle listing did not contain the requested
	// vehicle. The vehicle may have been removed from the account or the token belongs to a
	// different account.
	ErrVehicleNotFound = NewError("vehicle not found in account", true, false)
	// ErrAuthSerializationFailed indicates the client could not encode the authentication message
	// sent after connecting.
	ErrAuthSerializationFailed = NewError("failed to encode streaming authentication", true, false)

	ErrEmptyVehicleID = errors.New("vehicle id is empty")
	ErrNoCredentials  = errors.New("no streaming credentials provided")
	ErrBadMessage     = errors.New("invalid streaming message")
)

// StreamError is a categorized error raised by the streaming client itself.
type StreamError struct {
	Err               error
	Terminal          bool
	PossibleTemporary bool
}

func NewError(message string, fatal bool, temporary bool) error {
	return &StreamError{Err: errors.New(message), Terminal: fatal, PossibleTemporary: temporary}
}

func (e *StreamError) Error() string {
	return e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func (e *StreamError) Fatal() bool {
	return e.Terminal
}

func (e *StreamError) Temporary() bool {
	return e.PossibleTemporary
}

// ServerError is reported by the streaming server in a data:error message. The stream remains
// open.
type ServerError struct {
	Value     string
	ErrorType string
}

func (e *ServerError) Error() string {
	switch {
	case e.ErrorType == "" && e.Value == "":
		return "streaming server reported an error"
	case e.ErrorType == "":
		return "streaming server reported an error: " + e.Value
	case e.Value == "":
		return "streaming server reported " + e.ErrorType
	}
	return fmt.Sprintf("streaming server reported %s: %s", e.ErrorType, e.Value)
}

func (e *ServerError) Fatal() bool {
	return false
}

// Temporary returns true for vehicle-side conditions such as the vehicle going offline.
func (e *ServerError) Temporary() bool {
	return e.ErrorType == "vehicle_error" || e.ErrorType == "vehicle_disconnected" || e.Value == "vehicle_disconnected"
}

// TransportError wraps a failure reported by the underlying connection. On its own it does not
// end the stream; a DisconnectError follows if the connection is lost.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "streaming transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Fatal() bool {
	return false
}

func (e *TransportError) Temporary() bool {
	return true
}

// CloseNormalClosure is the WebSocket close code for a deliberate shutdown.
const CloseNormalClosure = websocket.CloseNormalClosure

// DisconnectError indicates the connection was closed by the server or lost. Err is the network
// error that ended the connection, if any.
type DisconnectError struct {
	Code   int
	Reason string
	Err    error
}

func (e *DisconnectError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if reason == "" {
		return fmt.Sprintf("stream disconnected (code %d)", e.Code)
	}
	return fmt.Sprintf("stream disconnected (code %d): %s", e.Code, reason)
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}

func (e *DisconnectError) Fatal() bool {
	return true
}

// Temporary returns false for a normal closure and true otherwise.
func (e *DisconnectError) Temporary() bool {
	return e.Code != CloseNormalClosure || e.Err != nil
}

// IsFatal returns true if err is an Error that ends the stream.
func IsFatal(err error) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return false
}

// Temporary returns true if err is an Error that indicates a possibly transient condition.
func Temporary(err error) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Temporary()
	}
	return false
}

// ShouldReconnect returns true if a caller is likely to succeed by opening a new stream after
// observing err.
func ShouldReconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrVehicleNotFound) {
		return false
	}
	return Temporary(err)
}
