// Package streaming subscribes to real-time vehicle telemetry.
//
// A [Client] opens one [Stream] at a time. Each stream connects to the streaming endpoint over a
// WebSocket, sends a single authentication message, and then delivers telemetry samples until the
// server disconnects or the caller closes the stream:
//
//	client := streaming.NewClient(acct, acct)
//	stream := client.OpenStream(ctx, car, streaming.StreamOptions{})
//	defer stream.Close()
//	for event, err := range stream.All(ctx) {
//		...
//	}
package streaming

import (
	"context"
	"net/http"
	"sync"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/connector"
	"github.com/teslamotors/vehicle-streaming/pkg/connector/ws"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

// DefaultEndpoint is the production streaming server.
const DefaultEndpoint = "wss://streaming.vn.teslamotors.com/streaming/"

// TransportFactory creates the connection used by a session. The header is sent with the
// connection request.
type TransportFactory func(endpoint string, header http.Header) connector.Transport

// webSocketFactory returns the default TransportFactory. Its transports log to logger.
func webSocketFactory(logger Logger) TransportFactory {
	return func(endpoint string, header http.Header) connector.Transport {
		t := ws.New(endpoint, header)
		t.Logger = logger
		return t
	}
}

// Client opens telemetry streams for vehicles that belong to an account.
type Client struct {
	tokens       TokenProvider
	resolver     *Resolver
	endpoint     string
	newTransport TransportFactory
	columns      []string
	userAgent    string
	logger       Logger

	lock    sync.Mutex
	current *Stream
}

type Option func(*Client)

// WithLogger sets the destination of the Client's diagnostic messages, including those of the
// default WebSocket transport.
func WithLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithTransportFactory(factory TransportFactory) Option {
	return func(c *Client) { c.newTransport = factory }
}

// WithColumns sets the telemetry fields requested from the server. See
// [github.com/teslamotors/vehicle-streaming/pkg/protocol.DefaultColumns].
func WithColumns(columns ...string) Option {
	return func(c *Client) { c.columns = columns }
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) { c.userAgent = userAgent }
}

// NewClient returns a Client that reads access tokens from tokens and reloads vehicle records from
// directory. The Client does not take ownership of either.
func NewClient(tokens TokenProvider, directory VehicleDirectory, options ...Option) *Client {
	c := &Client{
		tokens:       tokens,
		resolver: NewResolver(directory),
		endpoint: DefaultEndpoint,
		logger:   log.Default(),
	}
	for _, option := range options {
		option(c)
	}
	if c.newTransport == nil {
		c.newTransport = webSocketFactory(c.logger)
	}
	return c
}

// OpenStream starts streaming telemetry from v and returns immediately. Connection failures are
// reported as events on the returned Stream. Any stream previously opened by c is closed.
//
// Cancelling ctx disconnects the stream.
func (c *Client) OpenStream(ctx context.Context, v vehicle.Vehicle, options StreamOptions) *Stream {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.current != nil {
		c.current.Close()
	}

	stream := newStream()
	header := make(http.Header)
	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}
	session := &Session{
		ID:           newSessionID(),
		vehicle:      v,
		options:      options,
		tokens:       c.tokens,
		resolver:     c.resolver,
		newTransport: c.newTransport,
		endpoint:     c.endpoint,
		header:       header,
		columns:      c.columns,
		logger:       c.logger,
		out:          stream.events,
		done:         stream.done,
	}
	session.ctx, session.cancel = context.WithCancel(ctx)
	session.machine = session.newMachine()
	stream.session = session
	c.current = stream

	c.logger.Debug("[%s] Opening stream for vehicle %s", session.ID, &v)
	go session.run(stream)
	return stream
}

// CloseStream closes the stream most recently opened by c, if any.
func (c *Client) CloseStream() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.current != nil {
		c.current.Close()
		c.current = nil
	}
}
