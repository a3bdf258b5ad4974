package common

import (
	"errors"
	"fmt"
)

//
// Base Types
//

type BaseError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"cause"`
	Details map[string]interface{} `json:"details"`
}

func (e *BaseError) Unwrap() error {
	return e.Cause
}

func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) CodeChain() string {
	if e.Cause != nil {
		if be, ok := e.Cause.(*BaseError); ok {
			return fmt.Sprintf("%s <- %s", e.Code, be.CodeChain())
		}
	}

	return e.Code
}

func (e *BaseError) HasCode(code string) bool {
	if e.Code == code {
		return true
	}
	if e.Cause != nil {
		if be, ok := e.Cause.(interface{ HasCode(string) bool }); ok {
			return be.HasCode(code)
		}
	}
	return false
}

type ErrorWithStatusCode interface {
	ErrorStatusCode() int
}

func HasErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var be interface{ HasCode(string) bool }
	if errors.As(err, &be) {
		return be.HasCode(code)
	}
	return false
}

//
// Request parsing
//

const ErrCodeJsonRpcRequestUnmarshal = "ErrJsonRpcRequestUnmarshal"

type ErrJsonRpcRequestUnmarshal struct{ BaseError }

func NewErrJsonRpcRequestUnmarshal(cause error) error {
	return &ErrJsonRpcRequestUnmarshal{
		BaseError{
			Code:    ErrCodeJsonRpcRequestUnmarshal,
			Message: "failed to parse json-rpc request body",
			Cause:   cause,
		},
	}
}

func (e *ErrJsonRpcRequestUnmarshal) ErrorStatusCode() int { return 400 }

const ErrCodeJsonRpcRequestUnresolvableMethod = "ErrJsonRpcRequestUnresolvableMethod"

type ErrJsonRpcRequestUnresolvableMethod struct{ BaseError }

func NewErrJsonRpcRequestUnresolvableMethod(body interface{}) error {
	return &ErrJsonRpcRequestUnresolvableMethod{
		BaseError{
			Code:    ErrCodeJsonRpcRequestUnresolvableMethod,
			Message: "could not resolve method in json-rpc request",
			Details: map[string]interface{}{
				"body": fmt.Sprintf("%s", body),
			},
		},
	}
}

func (e *ErrJsonRpcRequestUnresolvableMethod) ErrorStatusCode() int { return 400 }

//
// Admission
//

const ErrCodeAdmissionRejected = "ErrAdmissionRejected"

type ErrAdmissionRejected struct{ BaseError }

func NewErrAdmissionRejected(scope string) error {
	return &ErrAdmissionRejected{
		BaseError{
			Code:    ErrCodeAdmissionRejected,
			Message: "capacity exceeded, request rejected before reaching any node",
			Details: map[string]interface{}{
				"scope": scope,
			},
		},
	}
}

func (e *ErrAdmissionRejected) ErrorStatusCode() int { return 429 }

//
// Upstream failures
//

const ErrCodeUpstreamTimeout = "ErrUpstreamTimeout"

type ErrUpstreamTimeout struct{ BaseError }

func NewErrUpstreamTimeout(nodeId string, durationMs int64) error {
	return &ErrUpstreamTimeout{
		BaseError{
			Code:    ErrCodeUpstreamTimeout,
			Message: "node did not respond within the call timeout",
			Details: map[string]interface{}{
				"nodeId":     nodeId,
				"durationMs": durationMs,
			},
		},
	}
}

func (e *ErrUpstreamTimeout) ErrorStatusCode() int { return 504 }

const ErrCodeUpstreamTransport = "ErrUpstreamTransport"

type ErrUpstreamTransport struct{ BaseError }

func NewErrUpstreamTransport(nodeId string, cause error) error {
	return &ErrUpstreamTransport{
		BaseError{
			Code:    ErrCodeUpstreamTransport,
			Message: "transport-level failure towards node",
			Cause:   cause,
			Details: map[string]interface{}{
				"nodeId": nodeId,
			},
		},
	}
}

func (e *ErrUpstreamTransport) ErrorStatusCode() int { return 502 }

const ErrCodeUpstreamHeightLag = "ErrUpstreamHeightLag"

type ErrUpstreamHeightLag struct{ BaseError }

func NewErrUpstreamHeightLag(nodeId string, nodeHeight, bestHeight int64) error {
	return &ErrUpstreamHeightLag{
		BaseError{
			Code:    ErrCodeUpstreamHeightLag,
			Message: "node is materially behind the best known chain head",
			Details: map[string]interface{}{
				"nodeId":     nodeId,
				"nodeHeight": nodeHeight,
				"bestHeight": bestHeight,
			},
		},
	}
}

func (e *ErrUpstreamHeightLag) ErrorStatusCode() int { return 503 }

//
// Dispatch-level terminal errors
//

const ErrCodeNoHealthyNodes = "ErrNoHealthyNodes"

type ErrNoHealthyNodes struct{ BaseError }

func NewErrNoHealthyNodes() error {
	return &ErrNoHealthyNodes{
		BaseError{
			Code:    ErrCodeNoHealthyNodes,
			Message: "no node is currently in a routable health state",
		},
	}
}

func (e *ErrNoHealthyNodes) ErrorStatusCode() int { return 503 }

const ErrCodeAllNodesExhausted = "ErrAllNodesExhausted"

type ErrAllNodesExhausted struct{ BaseError }

func NewErrAllNodesExhausted(attempts int, lastCause error) error {
	return &ErrAllNodesExhausted{
		BaseError{
			Code:    ErrCodeAllNodesExhausted,
			Message: "all dispatch attempts towards nodes have failed",
			Cause:   lastCause,
			Details: map[string]interface{}{
				"attempts": attempts,
			},
		},
	}
}

func (e *ErrAllNodesExhausted) ErrorStatusCode() int { return 503 }

//
// Configuration
//

const ErrCodeInvalidConfig = "ErrInvalidConfig"

type ErrInvalidConfig struct{ BaseError }

func NewErrInvalidConfig(message string) error {
	return &ErrInvalidConfig{
		BaseError{
			Code:    ErrCodeInvalidConfig,
			Message: message,
		},
	}
}

//
// JSON-RPC application errors (returned by nodes, passed through verbatim)
//

type ErrJsonRpcException struct {
	OriginalCode int         `json:"code"`
	Message      string      `json:"message"`
	Data         interface{} `json:"data,omitempty"`
}

func NewErrJsonRpcException(code int, message string, data interface{}) *ErrJsonRpcException {
	return &ErrJsonRpcException{
		OriginalCode: code,
		Message:      message,
		Data:         data,
	}
}

func (e *ErrJsonRpcException) Error() string {
	return fmt.Sprintf("json-rpc error (%d): %s", e.OriginalCode, e.Message)
}

func (e *ErrJsonRpcException) MarshalJSON() ([]byte, error) {
	return SonicCfg.Marshal(struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data,omitempty"`
	}{
		Code:    e.OriginalCode,
		Message: e.Message,
		Data:    e.Data,
	})
}
