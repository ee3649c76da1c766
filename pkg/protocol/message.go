package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType identifies the kind of message sent by the streaming server.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageHello               // control:hello, sent after the server accepts the connection.
	MessageUpdate              // data:update, carries a telemetry sample.
	MessageError               // data:error, reported by the server without closing the stream.
)

var messageTypeNames = map[MessageType]string{
	MessageHello:  "control:hello",
	MessageUpdate: "data:update",
	MessageError:  "data:error",
}

// ParseMessageType maps a wire name to a MessageType. Unrecognized names map to MessageUnknown.
func ParseMessageType(name string) MessageType {
	for t, n := range messageTypeNames {
		if n == name {
			return t
		}
	}
	return MessageUnknown
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Message is a decoded frame received from the streaming server.
type Message struct {
	Type MessageType
	// RawType holds the msg_type field as received, which is useful for logging MessageUnknown
	// messages.
	RawType   string
	Tag       string
	Value     *string
	ErrorType *string
}

type wireMessage struct {
	MessageType string  `json:"msg_type"`
	Tag         string  `json:"tag,omitempty"`
	Value       *string `json:"value,omitempty"`
	ErrorType   *string `json:"error_type,omitempty"`
	Token       string  `json:"token,omitempty"`
}

// DecodeMessage parses a frame received from the streaming server.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrBadMessage, err)
	}
	if wire.MessageType == "" {
		return Message{}, fmt.Errorf("%w: missing msg_type", ErrBadMessage)
	}
	return Message{
		Type:      ParseMessageType(wire.MessageType),
		RawType:   wire.MessageType,
		Tag:       wire.Tag,
		Value:     wire.Value,
		ErrorType: wire.ErrorType,
	}, nil
}

// EncodeMessage serializes m. It's the inverse of DecodeMessage and is mostly useful for tests and
// server simulators.
func EncodeMessage(m Message) ([]byte, error) {
	name := m.RawType
	if m.Type != MessageUnknown {
		name = m.Type.String()
	}
	if name == "" {
		return nil, fmt.Errorf("%w: missing msg_type", ErrBadMessage)
	}
	return json.Marshal(wireMessage{MessageType: name, Tag: m.Tag, Value: m.Value, ErrorType: m.ErrorType})
}

// Credentials authorize a streaming session. Exactly one of Bearer or OAuth should be set.
type Credentials struct {
	Bearer *BearerCredentials
	OAuth  *OAuthCredentials
}

// BearerCredentials use the account email and a per-vehicle streaming token.
type BearerCredentials struct {
	Email        string
	VehicleToken string
}

// OAuthCredentials use the account's OAuth access token.
type OAuthCredentials struct {
	Token string
}

func OAuth(token string) Credentials {
	return Credentials{OAuth: &OAuthCredentials{Token: token}}
}

func Bearer(email, vehicleToken string) Credentials {
	return Credentials{Bearer: &BearerCredentials{Email: email, VehicleToken: vehicleToken}}
}

// DefaultColumns lists the telemetry fields requested from the server, in the order they appear in
// data:update values.
var DefaultColumns = []string{
	ColumnSpeed, ColumnOdometer, ColumnSOC, ColumnElevation, ColumnEstimatedHeading,
	ColumnLatitude, ColumnLongitude, ColumnPower, ColumnShiftState, ColumnRange,
	ColumnEstimatedRange, ColumnHeading,
}

// Authentication is the first message a client sends after connecting.
type Authentication struct {
	Credentials Credentials
	VehicleID   string
	// Columns requested from the server. DefaultColumns is used if empty.
	Columns []string
}

const (
	subscribeOAuth  = "data:subscribe_oauth"
	subscribeBearer = "data:subscribe"
)

func (a *Authentication) columns() []string {
	if len(a.Columns) == 0 {
		return DefaultColumns
	}
	return a.Columns
}

// EncodeAuthentication serializes a for transmission as a text frame.
func EncodeAuthentication(a Authentication) ([]byte, error) {
	if a.VehicleID == "" {
		return nil, ErrEmptyVehicleID
	}
	columns := strings.Join(a.columns(), ",")
	wire := wireMessage{Tag: a.VehicleID, Value: &columns}
	switch {
	case a.Credentials.OAuth != nil:
		wire.MessageType = subscribeOAuth
		wire.Token = a.Credentials.OAuth.Token
	case a.Credentials.Bearer != nil:
		wire.MessageType = subscribeBearer
		bearer := a.Credentials.Bearer.Email + ":" + a.Credentials.Bearer.VehicleToken
		wire.Token = base64.StdEncoding.EncodeToString([]byte(bearer))
	default:
		return nil, ErrNoCredentials
	}
	return json.Marshal(wire)
}

// DecodeAuthentication parses a message produced by EncodeAuthentication.
func DecodeAuthentication(data []byte) (Authentication, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Authentication{}, fmt.Errorf("%w: %s", ErrBadMessage, err)
	}
	if wire.Tag == "" {
		return Authentication{}, ErrEmptyVehicleID
	}
	auth := Authentication{VehicleID: wire.Tag}
	if wire.Value != nil && *wire.Value != "" {
		auth.Columns = strings.Split(*wire.Value, ",")
	}
	switch wire.MessageType {
	case subscribeOAuth:
		auth.Credentials = OAuth(wire.Token)
	case subscribeBearer:
		decoded, err := base64.StdEncoding.DecodeString(wire.Token)
		if err != nil {
			return Authentication{}, fmt.Errorf("%w: %s", ErrBadMessage, err)
		}
		email, token, ok := strings.Cut(string(decoded), ":")
		if !ok {
			return Authentication{}, fmt.Errorf("%w: malformed bearer token", ErrBadMessage)
		}
		auth.Credentials = Bearer(email, token)
	default:
		return Authentication{}, ErrNoCredentials
	}
	return auth, nil
}
