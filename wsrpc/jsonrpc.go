package wsrpc

import (
	"bytes"
	"encoding/json"
)

// JSON-RPC 2.0 error codes, plus one implementation-defined server code for
// failures that have no standard bucket.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeServerError    = -32000
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id. Per JSON-RPC
// semantics such requests are never answered.
func (r *rpcRequest) isNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcNotification is the server-to-client push shape: method names the topic
// family, params carries the rehydrated payload.
type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

func successResponse(id json.RawMessage, result interface{}) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) rpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

// frameItem is one slot of a decoded frame: either a parsed request or the
// error response already owed for that slot. Keeping slots ordered preserves
// the batch contract that responses come back in request order.
type frameItem struct {
	req *rpcRequest
	err *rpcResponse
}

// decodeFrame parses an inbound frame into ordered slots. It accepts a single
// request object or a batch array. A frame that cannot be parsed at all
// yields one top-level error response with a null id; a malformed element
// inside a batch yields an inline error in its slot.
func decodeFrame(raw []byte) (items []frameItem, batch bool, topErr *rpcResponse) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		resp := errorResponse(nil, codeInvalidRequest, "Invalid Request")
		return nil, false, &resp
	}

	if trimmed[0] == '[' {
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			resp := errorResponse(nil, codeParseError, "Parse error")
			return nil, true, &resp
		}
		if len(elements) == 0 {
			resp := errorResponse(nil, codeInvalidRequest, "Invalid Request")
			return nil, true, &resp
		}
		for _, element := range elements {
			var req rpcRequest
			if err := json.Unmarshal(element, &req); err != nil || req.JSONRPC != "2.0" {
				inlineErr := errorResponse(nil, codeInvalidRequest, "Invalid Request")
				items = append(items, frameItem{err: &inlineErr})
				continue
			}
			items = append(items, frameItem{req: &req})
		}
		return items, true, nil
	}

	var req rpcRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		resp := errorResponse(nil, codeParseError, "Parse error")
		return nil, false, &resp
	}
	if req.JSONRPC != "2.0" {
		resp := errorResponse(req.ID, codeInvalidRequest, "Invalid Request")
		return nil, false, &resp
	}
	return []frameItem{{req: &req}}, false, nil
}

// subscribeParams is the params shape shared by subscribe and unsubscribe:
// event selects the topic family, the rest carry the family's parameter.
type subscribeParams struct {
	Event           string `json:"event"`
	TxID            string `json:"tx_id,omitempty"`
	Address         string `json:"address,omitempty"`
	AssetIdentifier string `json:"asset_identifier,omitempty"`
	Value           string `json:"value,omitempty"`
}
