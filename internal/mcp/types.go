// Package mcp implements the generic tool-call interface spoken between the
// gateway and its backends: a JSON request/response over HTTP.
//
//	POST {base}/tools/call
//	{"method":"tools/call","params":{"name":"ha_get_states","arguments":{}}}
//
// A successful backend answers {"result": ...}. Bodies without a result member
// are passed back whole. Failures carry {"error":{"code":..,"message":..}} with
// a non-2xx status.
package mcp

import (
	"fmt"
)

// MethodToolsCall is the only method the interface defines.
const MethodToolsCall = "tools/call"

// CallPath is appended to a backend base address.
const CallPath = "tools/call"

// Request is a tool invocation envelope.
type Request struct {
	Method string     `json:"method"`
	Params CallParams `json:"params"`
}

// CallParams names the tool and carries its arguments.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response is a backend reply.
type Response struct {
	Result any       `json:"result,omitempty"`
	Error  *RPCError `json:"error,omitempty"`
}

// Standard error codes.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// RPCError is a structured backend failure.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRequest builds a tools/call envelope. Nil arguments become an empty
// object so backends never see null.
func NewRequest(name string, args map[string]any) *Request {
	if args == nil {
		args = map[string]any{}
	}
	return &Request{
		Method: MethodToolsCall,
		Params: CallParams{Name: name, Arguments: args},
	}
}
