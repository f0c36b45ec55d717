// Package rpc implements the uniform remote-call endpoint shared by all
// agents: a single POST route accepting a JSON-RPC-shaped envelope carrying
// one league.v2 message, plus the matching outbound client with bounded
// timeouts and exponential-backoff retry.
package rpc

import "encoding/json"

// Method is the single JSON-RPC method agents expose.
const Method = "handle_message"

// internalErrorCode is the JSON-RPC error code for handler failures.
const internalErrorCode = -32000

// Request is the JSON-RPC request wrapper.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// Params carries the league message inside a request.
type Params struct {
	Message json.RawMessage `json:"message"`
}

// Response is the JSON-RPC response wrapper.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
