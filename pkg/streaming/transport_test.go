package streaming_test

import (
	"context"
	"sync"

	"github.com/teslamotors/vehicle-streaming/pkg/connector"
)

// scriptedTransport is a connector.Transport driven by the test. Events pushed after a terminal
// event are discarded, like a real transport's.
type scriptedTransport struct {
	events chan connector.Event

	lock        sync.Mutex
	connects    int
	disconnects int
	connected   bool
	closed      bool
	sent        [][]byte
	pongs       [][]byte
	// sentEarly counts SendText calls made before EventConnected was delivered.
	sentEarly int
	// sendErr is returned by SendText when set.
	sendErr error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{events: make(chan connector.Event, 64)}
}

func (f *scriptedTransport) push(events ...connector.Event) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, event := range events {
		if f.closed {
			return
		}
		if event.Kind == connector.EventConnected {
			f.connected = true
		}
		f.events <- event
		if event.Terminal() {
			f.closed = true
			close(f.events)
		}
	}
}

func (f *scriptedTransport) Connect(_ context.Context) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.connects++
}

func (f *scriptedTransport) Events() <-chan connector.Event {
	return f.events
}

func (f *scriptedTransport) SendText(_ context.Context, data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.connected {
		f.sentEarly++
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *scriptedTransport) failSends(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sendErr = err
}

func (f *scriptedTransport) SendPong(payload []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.pongs = append(f.pongs, payload)
	return nil
}

func (f *scriptedTransport) Disconnect() {
	f.lock.Lock()
	f.disconnects++
	f.lock.Unlock()
	f.push(connector.Event{Kind: connector.EventCancelled})
}

func (f *scriptedTransport) Sent() [][]byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *scriptedTransport) Pongs() [][]byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([][]byte(nil), f.pongs...)
}

func (f *scriptedTransport) Connects() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.connects
}

func (f *scriptedTransport) Disconnects() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.disconnects
}

func (f *scriptedTransport) SentEarly() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.sentEarly
}
