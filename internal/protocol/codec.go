package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InitFrame encodes a connection_init frame carrying payload. A nil payload
// is sent as an empty object.
func InitFrame(payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode init payload: %w", err)
	}
	return json.Marshal(Message{Type: TypeConnectionInit, Payload: raw})
}

// StartFrame encodes a start frame for id. The request is JSON-encoded and
// carried as a string payload.
func StartFrame(id string, req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	payload, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("encode start payload: %w", err)
	}
	return json.Marshal(Message{ID: id, Type: TypeStart, Payload: payload})
}

// StopFrame encodes a stop frame for id.
func StopFrame(id string) []byte {
	data, _ := json.Marshal(Message{ID: id, Type: TypeStop})
	return data
}

// TerminateFrame encodes a connection_terminate frame.
func TerminateFrame() []byte {
	data, _ := json.Marshal(Message{Type: TypeConnectionTerminate})
	return data
}

// Decode parses an inbound frame.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return msg, nil
}

// DecodeResult parses a data frame payload.
func DecodeResult(payload json.RawMessage) (Result, error) {
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}

// ErrorMessage renders an error payload as text. Servers send a bare string,
// an object with a message, or a list of such objects.
func ErrorMessage(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}

	var single ResultError
	if err := json.Unmarshal(payload, &single); err == nil && single.Message != "" {
		return single.Message
	}

	var list []ResultError
	if err := json.Unmarshal(payload, &list); err == nil && len(list) > 0 {
		msgs := make([]string, 0, len(list))
		for _, e := range list {
			msgs = append(msgs, e.Message)
		}
		return strings.Join(msgs, "; ")
	}

	return string(payload)
}
