package streaming

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/teslamotors/vehicle-streaming/pkg/connector"
	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

// Session states.
const (
	StateIdle           = "idle"
	StateResolving      = "resolving"
	StateConnecting     = "connecting"
	StateAuthenticating = "authenticating"
	StateStreaming      = "streaming"
	StateClosed         = "closed"
)

const (
	eventResolve      = "resolve"
	eventConnect      = "connect"
	eventAuthenticate = "authenticate"
	eventConfirm      = "confirm"
	eventClose        = "close"
)

// eventBufferSize is the number of events a Stream can queue for a slow consumer before the
// session stops reading from the transport.
const eventBufferSize = connector.BufferSize

// Logger receives diagnostic messages. It's satisfied by *log.Logger from this module's
// internal/log package.
type Logger interface {
	Debug(format string, a ...interface{})
	Info(format string, a ...interface{})
	Warning(format string, a ...interface{})
	Error(format string, a ...interface{})
}

// StreamOptions control how a stream is opened.
type StreamOptions struct {
	// ReloadVehicle fetches the vehicle's current record from the directory before connecting.
	// Set this when the record may be stale, for example because it was loaded from a cache.
	ReloadVehicle bool
	// Email selects bearer authentication with the vehicle's streaming token. If empty, or if the
	// vehicle record has no streaming tokens, the OAuth access token is used instead.
	Email string
}

// Session drives one streaming connection: it resolves the vehicle, connects, authenticates, and
// translates transport activity into Events.
type Session struct {
	ID string

	vehicle      vehicle.Vehicle
	options      StreamOptions
	tokens       TokenProvider
	resolver     *Resolver
	newTransport TransportFactory
	endpoint     string
	header       http.Header
	columns      []string
	logger       Logger
	machine      *fsm.FSM

	ctx    context.Context
	cancel context.CancelFunc
	out    chan<- Event
	done   <-chan struct{}

	// terminated is only accessed from run.
	terminated bool

	lock      sync.Mutex
	transport connector.Transport
	closing   bool
}

func (s *Session) newMachine() *fsm.FSM {
	open := []string{StateIdle, StateResolving, StateConnecting, StateAuthenticating, StateStreaming}
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventResolve, Src: []string{StateIdle}, Dst: StateResolving},
			{Name: eventConnect, Src: []string{StateIdle, StateResolving}, Dst: StateConnecting},
			{Name: eventAuthenticate, Src: []string{StateConnecting}, Dst: StateAuthenticating},
			{Name: eventConfirm, Src: []string{StateAuthenticating}, Dst: StateStreaming},
			{Name: eventClose, Src: open, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				stateTransitions.WithLabelValues(e.Dst).Inc()
				s.logger.Debug("[%s] %s -> %s", s.ID, e.Src, e.Dst)
			},
		},
	)
}

// State returns the session's current state.
func (s *Session) State() string {
	return s.machine.Current()
}

func (s *Session) transition(event string) {
	if err := s.machine.Event(context.Background(), event); err != nil {
		s.logger.Debug("[%s] Ignoring %s in state %s: %s", s.ID, event, s.machine.Current(), err)
	}
}

// emit delivers event to the Stream, returning false if the consumer closed it.
func (s *Session) emit(event Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- event:
		eventsDelivered.WithLabelValues(event.Kind.String()).Inc()
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) emitError(err error) {
	s.logger.Debug("[%s] Stream error: %s", s.ID, err)
	s.emit(Event{Kind: EventError, Err: err})
}

func (s *Session) terminate() {
	if s.terminated {
		return
	}
	s.terminated = true
	s.transition(eventClose)
	s.emit(Event{Kind: EventDisconnected})
}

// close is called by Stream.Close. It may run concurrently with run.
func (s *Session) close() {
	s.cancel()
	s.lock.Lock()
	s.closing = true
	t := s.transport
	s.lock.Unlock()
	if t != nil {
		t.Disconnect()
	}
	s.transition(eventClose)
}

// attach records t as the session's transport. It returns false if the session is already closing,
// in which case the caller must not connect t.
func (s *Session) attach(t connector.Transport) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.transport = t
	return !s.closing
}

func (s *Session) credentials(v *vehicle.Vehicle, accessToken string) protocol.Credentials {
	if s.options.Email != "" {
		if token, ok := v.StreamingToken(); ok {
			return protocol.Bearer(s.options.Email, token)
		}
		s.logger.Warning("[%s] Vehicle %s has no streaming token, using OAuth", s.ID, v)
	}
	return protocol.OAuth(accessToken)
}

// run is the session's only goroutine. It is the sole producer of Stream events and closes the
// Stream's channel on return.
func (s *Session) run(stream *Stream) {
	defer close(s.out)
	defer s.cancel()
	sessionsTotal.Inc()
	sessionsActive.Inc()
	defer sessionsActive.Dec()

	v := s.vehicle
	if s.options.ReloadVehicle {
		s.transition(eventResolve)
		s.logger.Debug("[%s] Reloading vehicle %s", s.ID, &v)
		resolved, err := s.resolver.Resolve(s.ctx, v.VehicleID)
		if err != nil {
			s.logger.Warning("[%s] Could not resolve vehicle %s: %s", s.ID, &v, err)
			stream.err = err
			s.transition(eventClose)
			return
		}
		v = resolved
	}

	accessToken := s.tokens.AccessToken()
	if accessToken == "" {
		s.emitError(protocol.ErrMissingCredential)
		s.terminate()
		return
	}

	auth := protocol.Authentication{
		Credentials: s.credentials(&v, accessToken),
		VehicleID:   v.StreamingID(),
		Columns:     s.columns,
	}

	s.transition(eventConnect)
	t := s.newTransport(s.endpoint, s.header)
	if s.attach(t) {
		s.logger.Debug("[%s] Connecting to %s", s.ID, s.endpoint)
		t.Connect(s.ctx)
	} else {
		t.Disconnect()
	}

	// The transport closes its channel after a terminal event. Draining it fully lets the
	// transport's goroutines exit even if the consumer closed the Stream.
	for event := range t.Events() {
		s.handle(t, &auth, event)
	}
	s.terminate()
}

func (s *Session) handle(t connector.Transport, auth *protocol.Authentication, event connector.Event) {
	switch event.Kind {
	case connector.EventConnected:
		s.authenticate(t, auth)
	case connector.EventText, connector.EventBinary:
		s.handleFrame(event.Data)
	case connector.EventPing:
		s.logger.Debug("[%s] Received ping", s.ID)
	case connector.EventPong:
		if err := t.SendPong(event.Data); err != nil {
			s.logger.Debug("[%s] Failed to send pong: %s", s.ID, err)
		}
	case connector.EventViabilityChanged:
		s.logger.Debug("[%s] Connection viable: %v", s.ID, event.Flag)
	case connector.EventReconnectSuggested:
		s.logger.Debug("[%s] Reconnect suggested: %v", s.ID, event.Flag)
	case connector.EventError:
		s.emitError(&protocol.TransportError{Err: event.Err})
	case connector.EventDisconnected:
		s.logger.Info("[%s] Disconnected (code %d): %s", s.ID, event.Code, event.Reason)
		if event.Code != connector.CloseNormalClosure || event.Err != nil {
			s.emitError(&protocol.DisconnectError{Code: event.Code, Reason: event.Reason, Err: event.Err})
		}
		s.terminate()
	case connector.EventCancelled:
		s.logger.Debug("[%s] Connection cancelled", s.ID)
		s.terminate()
	}
}

func (s *Session) authenticate(t connector.Transport, auth *protocol.Authentication) {
	encoded, err := protocol.EncodeAuthentication(*auth)
	if err != nil {
		s.emitError(fmt.Errorf("%w: %w", protocol.ErrAuthSerializationFailed, err))
		s.transition(eventClose)
		t.Disconnect()
		return
	}
	if err := t.SendText(s.ctx, encoded); err != nil {
		// The server waits for a subscription that will never arrive.
		s.emitError(&protocol.TransportError{Err: err})
		s.transition(eventClose)
		t.Disconnect()
		return
	}
	s.transition(eventAuthenticate)
	s.logger.Info("[%s] Subscribed to vehicle %s", s.ID, auth.VehicleID)
	s.emit(Event{Kind: EventOpen})
}

func (s *Session) handleFrame(data []byte) {
	message, err := protocol.DecodeMessage(data)
	if err != nil {
		s.logger.Debug("[%s] Dropping frame: %s", s.ID, err)
		droppedFrames.WithLabelValues(dropDecode).Inc()
		return
	}
	// There's no explicit acknowledgement; any decodable message means the server accepted the
	// subscription.
	if s.machine.Is(StateAuthenticating) {
		s.transition(eventConfirm)
	}

	switch message.Type {
	case protocol.MessageHello:
		s.logger.Debug("[%s] Server hello", s.ID)
	case protocol.MessageUpdate:
		if message.Value == nil {
			droppedFrames.WithLabelValues(dropEmpty).Inc()
			return
		}
		s.emit(Event{Kind: EventData, Data: protocol.ParseStreamEvent(*message.Value, s.columns)})
	case protocol.MessageError:
		serverErr := &protocol.ServerError{}
		if message.Value != nil {
			serverErr.Value = *message.Value
		}
		if message.ErrorType != nil {
			serverErr.ErrorType = *message.ErrorType
		}
		s.emitError(serverErr)
	default:
		s.logger.Debug("[%s] Ignoring message type %q", s.ID, message.RawType)
		droppedFrames.WithLabelValues(dropUnknown).Inc()
	}
}

func newSessionID() string {
	return uuid.NewString()
}
