package graphql

import (
	"encoding/json"
	"fmt"
)

// Subprotocol is the WebSocket sub-protocol negotiated for subscriptions
const Subprotocol = "graphql-transport-ws"

// Message types of the graphql-transport-ws protocol
const (
	MsgConnectionInit = "connection_init"
	MsgConnectionAck  = "connection_ack"
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgSubscribe      = "subscribe"
	MsgNext           = "next"
	MsgError          = "error"
	MsgComplete       = "complete"
)

// Message is a single protocol frame
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Result extracts the response data of a next or error frame. Frames of any
// other type are rejected.
func (m Message) Result() (json.RawMessage, error) {
	switch m.Type {
	case MsgNext:
		var resp Response
		if err := json.Unmarshal(m.Payload, &resp); err != nil {
			return nil, fmt.Errorf("parsing next payload: %w", err)
		}
		if len(resp.Errors) > 0 {
			return nil, resp.Errors
		}
		return resp.Data, nil
	case MsgError:
		var errs Errors
		if err := json.Unmarshal(m.Payload, &errs); err != nil {
			return nil, fmt.Errorf("parsing error payload: %w", err)
		}
		if len(errs) == 0 {
			errs = Errors{{Message: "subscription failed"}}
		}
		return nil, errs
	default:
		return nil, fmt.Errorf("unexpected %q message", m.Type)
	}
}
