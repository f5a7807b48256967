package store

import "encoding/json"

// Wire protocol: JSON-RPC style frames over the websocket. Requests carry a
// client-generated correlation id; frames without an id are server-pushed
// subscription notifications. Values travel as JSON documents regardless of
// the negotiated frame codec.

const (
	methodAuth     = "auth"
	methodGet      = "get"
	methodPut      = "put"
	methodListen   = "listen"
	methodUnlisten = "unlisten"
)

// RPCRequest is one outbound call.
type RPCRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

// RPCResponse is one inbound frame: either the response to a request (ID
// set) or a notification envelope (ID empty, Result holds a Notification).
type RPCResponse struct {
	ID     string          `json:"id,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// RPCError is a failure reported by the store.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (r *RPCError) Error() string {
	return r.Message
}

// Notification is the payload of a server-pushed frame for one live
// subscription. Data is always the full value at the subscribed path.
type Notification struct {
	SubscriptionID string          `json:"subscription"`
	Path           string          `json:"path"`
	Data           json.RawMessage `json:"data"`
}
