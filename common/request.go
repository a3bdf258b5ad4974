package common

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

type RequestDirectives struct {
	// Instruct the proxy to skip cache reads, for example to force freshness
	// or to bypass a suspected corrupted entry.
	SkipCacheRead bool
}

// NormalizedRequest wraps a raw json-rpc request body and lazily parses it.
// It is immutable once received; parsing is memoized behind the embedded lock.
type NormalizedRequest struct {
	sync.RWMutex

	body       []byte
	method     string
	directives *RequestDirectives

	jsonRpcRequest *JsonRpcRequest
}

func NewNormalizedRequest(body []byte) *NormalizedRequest {
	return &NormalizedRequest{
		body:       body,
		directives: &RequestDirectives{},
	}
}

func NewNormalizedRequestFromJsonRpc(rpcReq *JsonRpcRequest) *NormalizedRequest {
	return &NormalizedRequest{
		jsonRpcRequest: rpcReq,
		directives:     &RequestDirectives{},
	}
}

func (r *NormalizedRequest) ApplyDirectivesFromHttp(headers http.Header) {
	r.directives = &RequestDirectives{
		SkipCacheRead: headers.Get("X-RPCMUX-Skip-Cache-Read") == "true",
	}
}

func (r *NormalizedRequest) SkipCacheRead() bool {
	if r == nil || r.directives == nil {
		return false
	}
	return r.directives.SkipCacheRead
}

func (r *NormalizedRequest) Directives() *RequestDirectives {
	if r == nil {
		return nil
	}
	return r.directives
}

// JsonRpcRequest parses and memoizes the underlying json-rpc envelope.
func (r *NormalizedRequest) JsonRpcRequest() (*JsonRpcRequest, error) {
	if r == nil {
		return nil, nil
	}
	r.RLock()
	if r.jsonRpcRequest != nil {
		r.RUnlock()
		return r.jsonRpcRequest, nil
	}
	r.RUnlock()

	r.Lock()
	defer r.Unlock()

	// Double-check in case another goroutine initialized it
	if r.jsonRpcRequest != nil {
		return r.jsonRpcRequest, nil
	}

	rpcReq := new(JsonRpcRequest)
	if err := SonicCfg.Unmarshal(r.body, rpcReq); err != nil {
		return nil, NewErrJsonRpcRequestUnmarshal(err)
	}

	if rpcReq.Method == "" {
		return nil, NewErrJsonRpcRequestUnresolvableMethod(r.body)
	}

	r.jsonRpcRequest = rpcReq

	return rpcReq, nil
}

func (r *NormalizedRequest) Method() (string, error) {
	if r.method != "" {
		return r.method, nil
	}

	r.RLock()
	if r.jsonRpcRequest != nil {
		r.method = r.jsonRpcRequest.Method
		r.RUnlock()
		return r.method, nil
	}
	r.RUnlock()

	if len(r.body) > 0 {
		method, err := sonic.Get(r.body, "method")
		if err != nil {
			return "", NewErrJsonRpcRequestUnmarshal(err)
		}
		m, err := method.String()
		if err != nil {
			return "", NewErrJsonRpcRequestUnmarshal(err)
		}
		r.method = m
		return m, nil
	}

	return "", NewErrJsonRpcRequestUnresolvableMethod(r.body)
}

func (r *NormalizedRequest) Id() interface{} {
	if r == nil {
		return nil
	}
	if jrr, err := r.JsonRpcRequest(); err == nil && jrr != nil {
		return jrr.ID
	}
	return nil
}

func (r *NormalizedRequest) Body() []byte {
	return r.body
}

func (r *NormalizedRequest) CacheHash() (string, error) {
	rq, err := r.JsonRpcRequest()
	if err != nil {
		return "", err
	}
	if rq != nil {
		return rq.CacheHash()
	}
	return "", fmt.Errorf("request is not valid to generate cache hash")
}

func (r *NormalizedRequest) MarshalZerologObject(e *zerolog.Event) {
	if r == nil {
		return
	}
	if r.jsonRpcRequest != nil {
		e.Object("jsonRpc", r.jsonRpcRequest)
	} else if r.body != nil {
		e.Str("body", string(r.body))
	}
}
