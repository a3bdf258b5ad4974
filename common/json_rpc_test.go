package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonRpcRequest_CacheHash(t *testing.T) {
	t.Run("SameRequestSameHash", func(t *testing.T) {
		a := &JsonRpcRequest{Method: "eth_getBalance", Params: []interface{}{"0xABC", "latest"}}
		b := &JsonRpcRequest{Method: "eth_getBalance", Params: []interface{}{"0xabc", "latest"}}

		ha, err := a.CacheHash()
		require.NoError(t, err)
		hb, err := b.CacheHash()
		require.NoError(t, err)

		// Hex params are case-insensitive on chain, so they must collapse to
		// one cache entry.
		assert.Equal(t, ha, hb)
	})

	t.Run("IdDoesNotAffectHash", func(t *testing.T) {
		a := &JsonRpcRequest{ID: 1, Method: "eth_blockNumber", Params: []interface{}{}}
		b := &JsonRpcRequest{ID: "some-uuid", Method: "eth_blockNumber", Params: []interface{}{}}

		ha, err := a.CacheHash()
		require.NoError(t, err)
		hb, err := b.CacheHash()
		require.NoError(t, err)

		assert.Equal(t, ha, hb)
	})

	t.Run("DifferentParamsDifferentHash", func(t *testing.T) {
		a := &JsonRpcRequest{Method: "eth_getBalance", Params: []interface{}{"0xabc", "latest"}}
		b := &JsonRpcRequest{Method: "eth_getBalance", Params: []interface{}{"0xdef", "latest"}}

		ha, err := a.CacheHash()
		require.NoError(t, err)
		hb, err := b.CacheHash()
		require.NoError(t, err)

		assert.NotEqual(t, ha, hb)
	})

	t.Run("DifferentMethodDifferentHash", func(t *testing.T) {
		a := &JsonRpcRequest{Method: "eth_getBalance", Params: []interface{}{"0xabc", "latest"}}
		b := &JsonRpcRequest{Method: "eth_getCode", Params: []interface{}{"0xabc", "latest"}}

		ha, err := a.CacheHash()
		require.NoError(t, err)
		hb, err := b.CacheHash()
		require.NoError(t, err)

		assert.NotEqual(t, ha, hb)
	})

	t.Run("MapKeyOrderIsIrrelevant", func(t *testing.T) {
		a := &JsonRpcRequest{Method: "eth_call", Params: []interface{}{
			map[string]interface{}{"to": "0xabc", "data": "0x1"},
			"latest",
		}}
		b := &JsonRpcRequest{Method: "eth_call", Params: []interface{}{
			map[string]interface{}{"data": "0x1", "to": "0xabc"},
			"latest",
		}}

		ha, err := a.CacheHash()
		require.NoError(t, err)
		hb, err := b.CacheHash()
		require.NoError(t, err)

		assert.Equal(t, ha, hb)
	})

	t.Run("HashIsPrefixedWithMethod", func(t *testing.T) {
		a := &JsonRpcRequest{Method: "eth_chainId", Params: []interface{}{}}
		h, err := a.CacheHash()
		require.NoError(t, err)
		assert.Contains(t, h, "eth_chainId:")
	})
}

func TestJsonRpcResponse_Unmarshal(t *testing.T) {
	t.Run("SuccessResult", func(t *testing.T) {
		var resp JsonRpcResponse
		err := SonicCfg.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"result":"0x1b4"}`), &resp)
		require.NoError(t, err)

		assert.Nil(t, resp.Error)
		assert.Equal(t, `"0x1b4"`, string(resp.Result))
	})

	t.Run("ErrorEnvelope", func(t *testing.T) {
		var resp JsonRpcResponse
		err := SonicCfg.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"error":{"code":-32602,"message":"invalid params"}}`), &resp)
		require.NoError(t, err)

		require.NotNil(t, resp.Error)
		assert.Equal(t, -32602, resp.Error.OriginalCode)
		assert.Equal(t, "invalid params", resp.Error.Message)
	})

	t.Run("NullErrorIsNoError", func(t *testing.T) {
		var resp JsonRpcResponse
		err := SonicCfg.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"result":"0x1","error":null}`), &resp)
		require.NoError(t, err)

		assert.Nil(t, resp.Error)
	})
}

func TestErrJsonRpcException_Marshal(t *testing.T) {
	t.Run("OmitsEmptyData", func(t *testing.T) {
		out, err := SonicCfg.Marshal(NewErrJsonRpcException(-32000, "execution reverted", nil))
		require.NoError(t, err)
		assert.JSONEq(t, `{"code":-32000,"message":"execution reverted"}`, string(out))
	})

	t.Run("KeepsData", func(t *testing.T) {
		out, err := SonicCfg.Marshal(NewErrJsonRpcException(3, "reverted", "0x08c379a0"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"code":3,"message":"reverted","data":"0x08c379a0"}`, string(out))
	})
}
