package protocol

import (
	"encoding/json"
	"errors"
)

// Subprotocol is the WebSocket sub-protocol negotiated by the transport.
const Subprotocol = "graphql-ws"

// MessageType identifies a graphql-ws frame.
type MessageType string

const (
	// Client -> Server
	TypeConnectionInit      MessageType = "connection_init"
	TypeStart               MessageType = "start"
	TypeStop                MessageType = "stop"
	TypeConnectionTerminate MessageType = "connection_terminate"

	// Server -> Client
	TypeConnectionAck   MessageType = "connection_ack"
	TypeConnectionError MessageType = "connection_error"
	TypeKeepAlive       MessageType = "ka"
	TypeData            MessageType = "data"
	TypeError           MessageType = "error"
	TypeComplete        MessageType = "complete"
)

// ErrMalformedFrame is returned by Decode for frames that are not JSON
// objects or carry no type.
var ErrMalformedFrame = errors.New("malformed frame")

// Message is a single graphql-ws frame. Payload is kept raw so the transport
// can forward it verbatim.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request describes a subscription query. It is immutable once handed to the
// transport.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Result is the decoded payload of a data frame.
type Result struct {
	Data   json.RawMessage `json:"data"`
	Errors []ResultError   `json:"errors,omitempty"`
}

// ResultError is a GraphQL execution error inside a Result.
type ResultError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}
