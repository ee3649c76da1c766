package streaming_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/mocks"
	"github.com/teslamotors/vehicle-streaming/pkg/connector"
	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
	"github.com/teslamotors/vehicle-streaming/pkg/streaming"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

const (
	vin         = "TESLA000000000001"
	accessToken = "access-token"
)

func frame(messageType, value, errorType string) connector.Event {
	m := protocol.Message{Type: protocol.ParseMessageType(messageType), RawType: messageType}
	if value != "" {
		m.Value = &value
	}
	if errorType != "" {
		m.ErrorType = &errorType
	}
	data, err := protocol.EncodeMessage(m)
	Expect(err).NotTo(HaveOccurred())
	return connector.Event{Kind: connector.EventText, Data: data}
}

var _ = Describe("Session", func() {
	var (
		ctrl          *gomock.Controller
		tokens        *mocks.TokenProvider
		directory     *mocks.VehicleDirectory
		transport     *scriptedTransport
		factoryCalls  atomic.Int32
		client        *streaming.Client
		car           vehicle.Vehicle
		ctx           context.Context
		cancelContext context.CancelFunc
	)

	next := func(stream *streaming.Stream) streaming.Event {
		GinkgoHelper()
		event, err := stream.Next(ctx)
		Expect(err).NotTo(HaveOccurred())
		return event
	}

	expectKind := func(stream *streaming.Stream, kind streaming.EventKind) streaming.Event {
		GinkgoHelper()
		event := next(stream)
		Expect(event.Kind).To(Equal(kind), "event = %+v", event)
		return event
	}

	expectEnd := func(stream *streaming.Stream) {
		GinkgoHelper()
		_, err := stream.Next(ctx)
		Expect(err).To(Equal(io.EOF))
	}

	// open connects the transport and waits for the authentication message.
	open := func(options streaming.StreamOptions) *streaming.Stream {
		GinkgoHelper()
		stream := client.OpenStream(ctx, car, options)
		Eventually(transport.Connects).Should(Equal(1))
		transport.push(connector.Event{Kind: connector.EventConnected})
		expectKind(stream, streaming.EventOpen)
		Expect(transport.Sent()).To(HaveLen(1))
		return stream
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		tokens = mocks.NewTokenProvider(ctrl)
		directory = mocks.NewVehicleDirectory(ctrl)
		transport = newScriptedTransport()
		factoryCalls.Store(0)
		car = vehicle.Vehicle{ID: 1, VehicleID: 1234, VIN: vin, Tokens: []string{"vehicle-token"}}
		ctx, cancelContext = context.WithTimeout(context.Background(), 5*time.Second)
		client = streaming.NewClient(tokens, directory,
			streaming.WithLogger(log.Discard()),
			streaming.WithTransportFactory(func(endpoint string, _ http.Header) connector.Transport {
				Expect(endpoint).To(Equal(streaming.DefaultEndpoint))
				factoryCalls.Add(1)
				return transport
			}),
		)
		DeferCleanup(func() {
			client.CloseStream()
			cancelContext()
			ctrl.Finish()
		})
	})

	Context("with an access token", func() {
		BeforeEach(func() {
			tokens.EXPECT().AccessToken().Return(accessToken).AnyTimes()
		})

		It("streams telemetry until the server closes the connection", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(
				frame("control:hello", "", ""),
				frame("data:update", "speed:42", ""),
				connector.Event{Kind: connector.EventDisconnected, Code: connector.CloseNormalClosure},
			)

			event := expectKind(stream, streaming.EventData)
			speed, ok := event.Data.Speed()
			Expect(ok).To(BeTrue())
			Expect(speed).To(Equal(42.0))
			expectKind(stream, streaming.EventDisconnected)
			expectEnd(stream)
			Expect(stream.State()).To(Equal(streaming.StateClosed))
		})

		It("subscribes with the OAuth token", func() {
			open(streaming.StreamOptions{})
			auth, err := protocol.DecodeAuthentication(transport.Sent()[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(auth.VehicleID).To(Equal("1234"))
			Expect(auth.Credentials).To(Equal(protocol.OAuth(accessToken)))
			Expect(auth.Columns).To(Equal(protocol.DefaultColumns))
		})

		It("subscribes with the vehicle token when an email is given", func() {
			open(streaming.StreamOptions{Email: "owner@example.com"})
			auth, err := protocol.DecodeAuthentication(transport.Sent()[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(auth.Credentials).To(Equal(protocol.Bearer("owner@example.com", "vehicle-token")))
		})

		It("does not authenticate before the transport connects", func() {
			stream := client.OpenStream(ctx, car, streaming.StreamOptions{})
			Eventually(transport.Connects).Should(Equal(1))
			Consistently(transport.Sent, 50*time.Millisecond).Should(BeEmpty())
			transport.push(connector.Event{Kind: connector.EventConnected})
			expectKind(stream, streaming.EventOpen)
			Expect(transport.SentEarly()).To(BeZero())
		})

		It("confirms the subscription on the first decoded message", func() {
			stream := open(streaming.StreamOptions{})
			Expect(stream.State()).To(Equal(streaming.StateAuthenticating))
			transport.push(connector.Event{Kind: connector.EventText, Data: []byte("garbage")})
			Consistently(stream.State, 50*time.Millisecond).Should(Equal(streaming.StateAuthenticating))
			transport.push(frame("control:hello", "", ""))
			Eventually(stream.State).Should(Equal(streaming.StateStreaming))
		})

		It("reports server errors without closing the stream", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(
				frame("data:error", "vehicle_disconnected", "vehicle_error"),
				frame("data:update", "speed:10", ""),
			)

			event := expectKind(stream, streaming.EventError)
			var serverErr *protocol.ServerError
			Expect(errors.As(event.Err, &serverErr)).To(BeTrue())
			Expect(serverErr.Value).To(Equal("vehicle_disconnected"))
			Expect(serverErr.ErrorType).To(Equal("vehicle_error"))
			Expect(protocol.IsFatal(event.Err)).To(BeFalse())

			event = expectKind(stream, streaming.EventData)
			Expect(event.Data.Fields).To(HaveKeyWithValue("speed", "10"))
			Expect(stream.State()).To(Equal(streaming.StateStreaming))
		})

		It("ignores unknown message types and malformed frames", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(
				frame("control:unknown", "x", ""),
				connector.Event{Kind: connector.EventBinary, Data: []byte("{not json")},
				frame("data:update", "", ""),
				connector.Event{Kind: connector.EventBinary, Data: frame("data:update", "soc:80", "").Data},
			)
			event := expectKind(stream, streaming.EventData)
			Expect(event.Data.Fields).To(Equal(map[string]string{"soc": "80"}))
		})

		It("delivers no events after Close", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(frame("data:update", "speed:1", ""))
			expectKind(stream, streaming.EventData)

			transport.push(
				frame("data:update", "speed:2", ""),
				frame("data:update", "speed:3", ""),
			)
			Eventually(func() int { return len(transport.events) }).Should(BeZero())
			stream.Close()
			expectEnd(stream)
			Expect(transport.Disconnects()).To(Equal(1))
		})

		It("ignores repeated calls to Close", func() {
			stream := open(streaming.StreamOptions{})
			stream.Close()
			stream.Close()
			client.CloseStream()
			expectEnd(stream)
			expectEnd(stream)
			Expect(transport.Disconnects()).To(Equal(1))
			Eventually(stream.State).Should(Equal(streaming.StateClosed))
		})

		It("closes the previous stream when a new one is opened", func() {
			first := open(streaming.StreamOptions{})
			second := client.OpenStream(ctx, car, streaming.StreamOptions{})
			expectEnd(first)
			Eventually(factoryCalls.Load).Should(Equal(int32(2)))
			second.Close()
		})

		It("reports transport errors without closing the stream", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(
				connector.Event{Kind: connector.EventError, Err: errors.New("read failed")},
				frame("data:update", "speed:5", ""),
			)
			event := expectKind(stream, streaming.EventError)
			var transportErr *protocol.TransportError
			Expect(errors.As(event.Err, &transportErr)).To(BeTrue())
			expectKind(stream, streaming.EventData)
		})

		It("reports abnormal disconnects before ending", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(connector.Event{Kind: connector.EventDisconnected, Code: 1006, Reason: "connection reset"})
			event := expectKind(stream, streaming.EventError)
			var disconnectErr *protocol.DisconnectError
			Expect(errors.As(event.Err, &disconnectErr)).To(BeTrue())
			Expect(disconnectErr.Code).To(Equal(1006))
			Expect(protocol.IsFatal(event.Err)).To(BeTrue())
			expectKind(stream, streaming.EventDisconnected)
			expectEnd(stream)
		})

		It("wraps the network error that ended the connection", func() {
			cause := errors.New("connection reset by peer")
			stream := open(streaming.StreamOptions{})
			transport.push(connector.Event{Kind: connector.EventDisconnected, Code: 1006, Err: cause})
			event := expectKind(stream, streaming.EventError)
			Expect(errors.Is(event.Err, cause)).To(BeTrue())
			var disconnectErr *protocol.DisconnectError
			Expect(errors.As(event.Err, &disconnectErr)).To(BeTrue())
			Expect(disconnectErr.Err).To(Equal(cause))
			expectKind(stream, streaming.EventDisconnected)
			expectEnd(stream)
		})

		It("disconnects when the subscription cannot be sent", func() {
			cause := errors.New("write: broken pipe")
			transport.failSends(cause)
			stream := client.OpenStream(ctx, car, streaming.StreamOptions{})
			Eventually(transport.Connects).Should(Equal(1))
			transport.push(connector.Event{Kind: connector.EventConnected})

			event := expectKind(stream, streaming.EventError)
			var transportErr *protocol.TransportError
			Expect(errors.As(event.Err, &transportErr)).To(BeTrue())
			Expect(errors.Is(event.Err, cause)).To(BeTrue())
			expectKind(stream, streaming.EventDisconnected)
			expectEnd(stream)
			Expect(transport.Disconnects()).To(Equal(1))
			Expect(stream.State()).To(Equal(streaming.StateClosed))
		})

		It("echoes pong payloads", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(
				connector.Event{Kind: connector.EventPing, Data: []byte("ping")},
				connector.Event{Kind: connector.EventPong, Data: []byte("keepalive")},
				connector.Event{Kind: connector.EventViabilityChanged, Flag: false},
				connector.Event{Kind: connector.EventReconnectSuggested, Flag: true},
				frame("data:update", "speed:7", ""),
			)
			expectKind(stream, streaming.EventData)
			Expect(transport.Pongs()).To(Equal([][]byte{[]byte("keepalive")}))
		})

		It("answers an empty pong with an empty pong", func() {
			stream := open(streaming.StreamOptions{})
			transport.push(
				connector.Event{Kind: connector.EventPong},
				frame("data:update", "speed:7", ""),
			)
			expectKind(stream, streaming.EventData)
			pongs := transport.Pongs()
			Expect(pongs).To(HaveLen(1))
			Expect(pongs[0]).To(BeEmpty())
		})

		It("fails the handshake when the vehicle has no streaming id", func() {
			car.VehicleID = 0
			stream := client.OpenStream(ctx, car, streaming.StreamOptions{})
			Eventually(transport.Connects).Should(Equal(1))
			transport.push(connector.Event{Kind: connector.EventConnected})

			event := expectKind(stream, streaming.EventError)
			Expect(errors.Is(event.Err, protocol.ErrAuthSerializationFailed)).To(BeTrue())
			Expect(errors.Is(event.Err, protocol.ErrEmptyVehicleID)).To(BeTrue())
			Expect(protocol.IsFatal(event.Err)).To(BeTrue())
			expectKind(stream, streaming.EventDisconnected)
			expectEnd(stream)
			Expect(transport.Sent()).To(BeEmpty())
			Expect(transport.Disconnects()).To(Equal(1))
		})

		Context("when reloading the vehicle", func() {
			It("subscribes with the reloaded record", func() {
				directory.EXPECT().ListVehicles(gomock.Any()).Return([]vehicle.Vehicle{
					{ID: 2, VehicleID: 5678, VIN: "TESLA000000000002"},
					{ID: 1, VehicleID: 1234, VIN: vin, Tokens: []string{"new-token"}},
				}, nil)
				open(streaming.StreamOptions{ReloadVehicle: true, Email: "owner@example.com"})
				auth, err := protocol.DecodeAuthentication(transport.Sent()[0])
				Expect(err).NotTo(HaveOccurred())
				Expect(auth.Credentials).To(Equal(protocol.Bearer("owner@example.com", "new-token")))
			})

			It("fails without connecting if the vehicle is missing", func() {
				directory.EXPECT().ListVehicles(gomock.Any()).Return([]vehicle.Vehicle{
					{ID: 2, VehicleID: 5678, VIN: "TESLA000000000002"},
				}, nil)
				stream := client.OpenStream(ctx, car, streaming.StreamOptions{ReloadVehicle: true})
				_, err := stream.Next(ctx)
				Expect(err).To(MatchError(protocol.ErrVehicleNotFound))
				Expect(factoryCalls.Load()).To(BeZero())
				Expect(transport.Connects()).To(BeZero())
			})

			It("fails without connecting if the directory is unavailable", func() {
				listErr := errors.New("service unavailable")
				directory.EXPECT().ListVehicles(gomock.Any()).Return(nil, listErr)
				stream := client.OpenStream(ctx, car, streaming.StreamOptions{ReloadVehicle: true})
				_, err := stream.Next(ctx)
				Expect(errors.Is(err, listErr)).To(BeTrue())
				Expect(factoryCalls.Load()).To(BeZero())
			})
		})
	})

	Context("without an access token", func() {
		It("reports a missing credential without connecting", func() {
			tokens.EXPECT().AccessToken().Return("")
			mockTransport := mocks.NewTransport(ctrl)
			client = streaming.NewClient(tokens, directory,
				streaming.WithLogger(log.Discard()),
				streaming.WithTransportFactory(func(string, http.Header) connector.Transport {
					factoryCalls.Add(1)
					return mockTransport
				}),
			)
			stream := client.OpenStream(ctx, car, streaming.StreamOptions{})

			event := expectKind(stream, streaming.EventError)
			Expect(event.Err).To(MatchError(protocol.ErrMissingCredential))
			expectKind(stream, streaming.EventDisconnected)
			expectEnd(stream)
			Expect(factoryCalls.Load()).To(BeZero())
		})
	})
})
