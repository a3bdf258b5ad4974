package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBlockTag(t *testing.T) {
	cases := []struct {
		name   string
		method string
		params []interface{}
		tag    string
	}{
		{"BalanceLatest", "eth_getBalance", []interface{}{"0xabc", "latest"}, BlockTagLatest},
		{"BalanceFinalized", "eth_getBalance", []interface{}{"0xabc", "finalized"}, BlockTagFinalized},
		{"BalanceConcreteBlock", "eth_getBalance", []interface{}{"0xabc", "0x10"}, ""},
		{"CallPending", "eth_call", []interface{}{map[string]interface{}{"to": "0xabc"}, "pending"}, BlockTagPending},
		{"StorageAtThirdParam", "eth_getStorageAt", []interface{}{"0xabc", "0x0", "safe"}, BlockTagSafe},
		{"BlockByNumberEarliest", "eth_getBlockByNumber", []interface{}{"earliest", false}, BlockTagEarliest},
		{"ImplicitLatest", "eth_blockNumber", []interface{}{}, BlockTagLatest},
		{"ImplicitLatestGasPrice", "eth_gasPrice", []interface{}{}, BlockTagLatest},
		{"NoBlockSemantics", "eth_getTransactionByHash", []interface{}{"0xdeadbeef"}, ""},
		{"MissingParam", "eth_getBalance", []interface{}{"0xabc"}, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.tag, ExtractBlockTag(c.method, c.params))
		})
	}
}

func TestIsHeightSensitive(t *testing.T) {
	assert.True(t, IsHeightSensitive("eth_getBalance", []interface{}{"0xabc", "latest"}))
	assert.True(t, IsHeightSensitive("eth_blockNumber", []interface{}{}))
	assert.True(t, IsHeightSensitive("eth_call", []interface{}{nil, "safe"}))

	// Pinned or historical reads do not care about head freshness.
	assert.False(t, IsHeightSensitive("eth_getBalance", []interface{}{"0xabc", "0x10"}))
	assert.False(t, IsHeightSensitive("eth_getBlockByNumber", []interface{}{"earliest", false}))
	assert.False(t, IsHeightSensitive("eth_getTransactionByHash", []interface{}{"0xdeadbeef"}))
}

func TestHexToInt64(t *testing.T) {
	n, err := HexToInt64("0x1b4")
	require.NoError(t, err)
	assert.Equal(t, int64(436), n)

	n, err = HexToInt64("0x0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = HexToInt64("1b4")
	assert.Error(t, err)

	_, err = HexToInt64("0xzz")
	assert.Error(t, err)

	assert.Equal(t, "0x1b4", Int64ToHex(436))
}
