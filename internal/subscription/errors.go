package subscription

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/hudlink/internal/protocol"
)

// Errors
var (
	ErrUnsupportedEnvironment = errors.New("websocket transport not supported in this environment")
	ErrClosed                 = errors.New("transport closed")
	ErrConnection             = errors.New("connection error")
	ErrSubscription           = errors.New("subscription error")
	ErrUnexpectedComplete     = errors.New("unexpected complete")
	ErrMalformedFrame         = protocol.ErrMalformedFrame
)

// ProtocolError is an error reported by the server, or derived from a frame
// the server sent. Kind is one of ErrConnection, ErrSubscription or
// ErrUnexpectedComplete.
type ProtocolError struct {
	Kind    error
	ID      string          // Subscription id; empty for connection-level errors
	Payload json.RawMessage // Frame payload as received
}

func (e *ProtocolError) Error() string {
	msg := e.Kind.Error()
	if e.ID != "" {
		msg = fmt.Sprintf("%s (subscription %s)", msg, e.ID)
	}

	if errors.Is(e.Kind, ErrUnexpectedComplete) {
		return msg + ": complete received without acknowledged stop request"
	}
	if detail := protocol.ErrorMessage(e.Payload); detail != "" {
		return msg + ": " + detail
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Kind
}
