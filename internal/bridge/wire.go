package bridge

import "encoding/json"

// rpcRequest is the outbound JSON-RPC 2.0 envelope sent to the daemon.
type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcErrorObj mirrors the daemon's JSON-RPC error object.
type rpcErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcErrorObj) String() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// rpcResponse decodes any inbound frame: a correlated response (id set,
// result or error set) or a notification (method set, id absent).
type rpcResponse struct {
	ID     *string           `json:"id,omitempty"`
	Method *string           `json:"method,omitempty"`
	Params []json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *rpcErrorObj      `json:"error,omitempty"`
}

// Notification is a decoded daemon notification (a frame with no id),
// published on the Event Bus. Raw preserves the original bytes so the
// browser event socket can forward them verbatim.
type Notification struct {
	Method string
	Params []json.RawMessage
	Raw    []byte
}

// GID extracts params[0].gid, the reconciliation key used by any
// notification whose method starts with "aria2.on" (spec §4.7).
func (n Notification) GID() (string, bool) {
	if len(n.Params) == 0 {
		return "", false
	}
	var first struct {
		GID string `json:"gid"`
	}
	if err := json.Unmarshal(n.Params[0], &first); err != nil || first.GID == "" {
		return "", false
	}
	return first.GID, true
}
