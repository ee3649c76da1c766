package streaming_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"go.uber.org/mock/gomock"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/mocks"
	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
	"github.com/teslamotors/vehicle-streaming/pkg/streaming"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		received chan protocol.Authentication
		agents   chan string
	)

	BeforeEach(func() {
		received = make(chan protocol.Authentication, 1)
		agents = make(chan string, 1)
		upgrader := websocket.Upgrader{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agents <- r.Header.Get("User-Agent")
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			auth, err := protocol.DecodeAuthentication(data)
			if err != nil {
				return
			}
			received <- auth

			conn.WriteMessage(websocket.TextMessage, []byte(`{"msg_type":"control:hello","connection_timeout":30000}`))
			conn.WriteMessage(websocket.BinaryMessage, []byte(`{"msg_type":"data:update","tag":"1234","value":"1700000000000,42,1000.5,80"}`))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.ReadMessage()
		}))
		DeferCleanup(server.Close)
	})

	It("streams from a WebSocket server", func() {
		ctrl := gomock.NewController(GinkgoT())
		tokens := mocks.NewTokenProvider(ctrl)
		tokens.EXPECT().AccessToken().Return(accessToken)
		directory := mocks.NewVehicleDirectory(ctrl)

		client := streaming.NewClient(tokens, directory,
			streaming.WithLogger(log.Discard()),
			streaming.WithEndpoint("ws"+strings.TrimPrefix(server.URL, "http")),
			streaming.WithColumns(protocol.ColumnSpeed, protocol.ColumnOdometer, protocol.ColumnSOC),
			streaming.WithUserAgent("streaming-test/1.0"),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stream := client.OpenStream(ctx, vehicle.Vehicle{VehicleID: 1234, VIN: vin}, streaming.StreamOptions{})
		defer stream.Close()

		var kinds []streaming.EventKind
		var sample protocol.StreamEvent
		for event, err := range stream.All(ctx) {
			Expect(err).NotTo(HaveOccurred())
			kinds = append(kinds, event.Kind)
			if event.Kind == streaming.EventData {
				sample = event.Data
			}
		}
		Expect(kinds).To(Equal([]streaming.EventKind{streaming.EventOpen, streaming.EventData, streaming.EventDisconnected}))

		Expect(<-agents).To(Equal("streaming-test/1.0"))
		auth := <-received
		Expect(auth.VehicleID).To(Equal("1234"))
		Expect(auth.Credentials).To(Equal(protocol.OAuth(accessToken)))
		Expect(auth.Columns).To(Equal([]string{"speed", "odometer", "soc"}))

		speed, _ := sample.Speed()
		Expect(speed).To(Equal(42.0))
		soc, _ := sample.SOC()
		Expect(soc).To(Equal(80.0))
		timestamp, ok := sample.Timestamp()
		Expect(ok).To(BeTrue())
		Expect(timestamp.UnixMilli()).To(Equal(int64(1700000000000)))
	})

	It("sends transport diagnostics to the client's logger", func() {
		ctrl := gomock.NewController(GinkgoT())
		tokens := mocks.NewTokenProvider(ctrl)
		tokens.EXPECT().AccessToken().Return(accessToken)
		directory := mocks.NewVehicleDirectory(ctrl)

		DeferCleanup(log.SetLevel, log.Default().Level())
		log.SetLevel(log.LevelNone)
		output := gbytes.NewBuffer()
		endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
		client := streaming.NewClient(tokens, directory,
			streaming.WithLogger(log.New(output, log.LevelDebug)),
			streaming.WithEndpoint(endpoint),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stream := client.OpenStream(ctx, vehicle.Vehicle{VehicleID: 1234, VIN: vin}, streaming.StreamOptions{})
		defer stream.Close()
		for _, err := range stream.All(ctx) {
			Expect(err).NotTo(HaveOccurred())
		}
		<-agents

		Expect(output).To(gbytes.Say("Dialing " + regexp.QuoteMeta(endpoint)))
		Expect(output).To(gbytes.Say(`Server closed connection \(1000\)`))
	})
})
