// Package ws implements a connector.Transport over a WebSocket connection.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/connector"
)

const (
	// DefaultHandshakeTimeout bounds the WebSocket opening handshake.
	DefaultHandshakeTimeout = 30 * time.Second
	writeWait               = 10 * time.Second
)

// Logger receives the Transport's debug messages.
type Logger interface {
	Debug(format string, a ...interface{})
}

// Transport implements the connector.Transport interface using gorilla/websocket.
type Transport struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	// Logger defaults to the process-wide logger. Set it before calling Connect.
	Logger Logger

	events chan connector.Event

	lock    sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	closing bool

	writeLock sync.Mutex
}

// New creates a Transport for url. The header is sent with the opening handshake and may be nil.
func New(url string, header http.Header) *Transport {
	return &Transport{
		URL:    url,
		Header: header,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		Logger: log.Default(),
		events: make(chan connector.Event, connector.BufferSize),
	}
}

func (t *Transport) Events() <-chan connector.Event {
	return t.events
}

func (t *Transport) Connect(ctx context.Context) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.started {
		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	go t.run(ctx)
}

func (t *Transport) isClosing() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.closing
}

func (t *Transport) emit(event connector.Event) {
	t.events <- event
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.events)

	t.Logger.Debug("Dialing %s...", t.URL)
	conn, rsp, err := t.Dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if ctx.Err() != nil || t.isClosing() {
			t.emit(connector.Event{Kind: connector.EventCancelled})
			return
		}
		t.emit(connector.Event{Kind: connector.EventError, Err: err})
		t.emit(connector.Event{Kind: connector.EventDisconnected, Code: websocket.CloseAbnormalClosure, Reason: err.Error(), Err: err})
		return
	}

	t.lock.Lock()
	if t.closing {
		t.lock.Unlock()
		conn.Close()
		t.emit(connector.Event{Kind: connector.EventCancelled})
		return
	}
	t.conn = conn
	t.lock.Unlock()

	conn.SetReadLimit(connector.MaxMessageLength)
	conn.SetPingHandler(func(data string) error {
		t.emit(connector.Event{Kind: connector.EventPing, Data: []byte(data)})
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		} else if _, ok := err.(net.Error); ok {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(data string) error {
		t.emit(connector.Event{Kind: connector.EventPong, Data: []byte(data)})
		return nil
	})

	var header http.Header
	if rsp != nil {
		header = rsp.Header
	}
	t.emit(connector.Event{Kind: connector.EventConnected, Header: header})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return t.readPump(conn)
	})
	group.Go(func() error {
		// Unblocks readPump when Disconnect is called or ctx expires.
		<-groupCtx.Done()
		return conn.Close()
	})
	err = group.Wait()

	if ctx.Err() != nil || t.isClosing() {
		t.emit(connector.Event{Kind: connector.EventCancelled})
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		t.Logger.Debug("Server closed connection (%d): %s", closeErr.Code, closeErr.Text)
		t.emit(connector.Event{Kind: connector.EventDisconnected, Code: closeErr.Code, Reason: closeErr.Text})
		return
	}
	t.emit(connector.Event{Kind: connector.EventError, Err: err})
	t.emit(connector.Event{Kind: connector.EventDisconnected, Code: websocket.CloseAbnormalClosure, Reason: err.Error(), Err: err})
}

func (t *Transport) readPump(conn *websocket.Conn) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch kind {
		case websocket.TextMessage:
			t.emit(connector.Event{Kind: connector.EventText, Data: data})
		case websocket.BinaryMessage:
			t.emit(connector.Event{Kind: connector.EventBinary, Data: data})
		}
	}
}

func (t *Transport) connection() (*websocket.Conn, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.conn == nil || t.closing {
		return nil, connector.ErrNotConnected
	}
	return t.conn, nil
}

func (t *Transport) SendText(ctx context.Context, data []byte) error {
	conn, err := t.connection()
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) SendPong(payload []byte) error {
	conn, err := t.connection()
	if err != nil {
		return err
	}
	return conn.WriteControl(websocket.PongMessage, payload, time.Now().Add(writeWait))
}

func (t *Transport) Disconnect() {
	t.lock.Lock()
	if t.closing {
		t.lock.Unlock()
		return
	}
	t.closing = true
	conn, cancel, started := t.conn, t.cancel, t.started
	t.started = true
	t.lock.Unlock()

	if !started {
		t.emit(connector.Event{Kind: connector.EventCancelled})
		close(t.events)
		return
	}
	if conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second)); err != nil {
			t.Logger.Debug("Failed to send close frame: %s", err)
		}
	}
	cancel()
}
