package jsonrpc

import "encoding/json"

// Based on JSON-RPC 2.0 Specification: https://www.jsonrpc.org/specification

// Request represents a JSON-RPC request object.
type Request struct {
	Version string          `json:"jsonrpc"`          // MUST be "2.0"
	Method  string          `json:"method"`           // Method to be invoked
	Params  json.RawMessage `json:"params,omitempty"` // Parameters (structured value or array)
	ID      json.RawMessage `json:"id,omitempty"`     // Request identifier (string, number, or null)
}

// IsNotification reports whether the request carries no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response represents a JSON-RPC response object.
type Response struct {
	Version string      `json:"jsonrpc"`          // MUST be "2.0"
	Result  interface{} `json:"result,omitempty"` // Required on success
	Error   *Error      `json:"error,omitempty"`  // Required on error
	ID      interface{} `json:"id"`               // Must match request ID (or null if could not be determined)
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional data about the error
}

// Error codes (subset, based on JSON-RPC spec and potential application errors)
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// -32000 to -32099: Server error (implementation-defined)
	CodeServerErrorToolNotFound     = -32000
	CodeServerErrorResourceNotFound = -32002
)

// Version is the protocol version string every request and response must carry.
const Version = "2.0"
