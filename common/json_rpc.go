package common

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

type JsonRpcRequest struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      interface{}   `json:"id,omitempty"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type JsonRpcResponse struct {
	JSONRPC string               `json:"jsonrpc,omitempty"`
	ID      interface{}          `json:"id"`
	Result  json.RawMessage      `json:"result,omitempty"`
	Error   *ErrJsonRpcException `json:"error,omitempty"`
}

func (r *JsonRpcRequest) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", r.Method).Interface("params", r.Params).Interface("id", r.ID)
}

func (r *JsonRpcResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Interface("id", r.ID).RawJSON("result", r.Result).Interface("error", r.Error)
}

func (r *JsonRpcResponse) UnmarshalJSON(data []byte) error {
	type Alias JsonRpcResponse
	aux := &struct {
		Error json.RawMessage `json:"error,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := SonicCfg.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Error) > 0 && string(aux.Error) != "null" {
		var rpcErr struct {
			Code    int         `json:"code"`
			Message string      `json:"message"`
			Data    interface{} `json:"data,omitempty"`
		}
		if err := SonicCfg.Unmarshal(aux.Error, &rpcErr); err != nil {
			return err
		}
		r.Error = NewErrJsonRpcException(rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}

	return nil
}

// CacheHash produces a deterministic digest of (method, params) so that
// semantically identical requests map to the same cache entry regardless of
// incidental formatting (hex case, map key order).
func (r *JsonRpcRequest) CacheHash() (string, error) {
	d := xxhash.New()
	if _, err := d.WriteString(r.Method); err != nil {
		return "", err
	}
	for _, p := range r.Params {
		if err := hashValue(d, p); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s:%x", r.Method, d.Sum64()), nil
}

func hashValue(d *xxhash.Digest, v interface{}) error {
	switch t := v.(type) {
	case nil:
		_, err := d.WriteString("null")
		return err
	case bool:
		_, err := d.WriteString(fmt.Sprintf("%t", t))
		return err
	case string:
		_, err := d.WriteString(normalizeHex(t))
		return err
	case float64:
		_, err := d.WriteString(fmt.Sprintf("%v", t))
		return err
	case json.Number:
		_, err := d.WriteString(t.String())
		return err
	case []interface{}:
		for _, e := range t {
			if err := hashValue(d, e); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := d.WriteString(k); err != nil {
				return err
			}
			if err := hashValue(d, t[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := d.WriteString(fmt.Sprintf("%v", t))
		return err
	}
}

func normalizeHex(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + strings.ToLower(s[2:])
	}
	return s
}
