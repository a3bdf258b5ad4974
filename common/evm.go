package common

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	BlockTagLatest    = "latest"
	BlockTagPending   = "pending"
	BlockTagFinalized = "finalized"
	BlockTagSafe      = "safe"
	BlockTagEarliest  = "earliest"
)

// blockTagParamIndex maps methods to the position of their block parameter.
var blockTagParamIndex = map[string]int{
	"eth_getBalance":          1,
	"eth_getCode":             1,
	"eth_getTransactionCount": 1,
	"eth_call":                1,
	"eth_getStorageAt":        2,
	"eth_getBlockByNumber":    0,
	"eth_feeHistory":          1,
}

// implicitLatestMethods always reflect the current chain head even though
// they carry no explicit block parameter.
var implicitLatestMethods = map[string]bool{
	"eth_blockNumber": true,
	"eth_gasPrice":    true,
	"eth_maxPriorityFeePerGas": true,
}

// ExtractBlockTag returns the block tag ("latest", "pending", "finalized", ...)
// referenced by the request, or empty string when the request pins a concrete
// block (number/hash) or has no block semantics at all.
func ExtractBlockTag(method string, params []interface{}) string {
	if implicitLatestMethods[method] {
		return BlockTagLatest
	}
	idx, ok := blockTagParamIndex[method]
	if !ok || idx >= len(params) {
		return ""
	}
	if tag, ok := params[idx].(string); ok {
		switch tag {
		case BlockTagLatest, BlockTagPending, BlockTagFinalized, BlockTagSafe, BlockTagEarliest:
			return tag
		}
	}
	return ""
}

// IsHeightSensitive reports whether a request's correctness depends on how
// close the serving node is to the chain head.
func IsHeightSensitive(method string, params []interface{}) bool {
	switch ExtractBlockTag(method, params) {
	case BlockTagLatest, BlockTagPending, BlockTagFinalized, BlockTagSafe:
		return true
	}
	return false
}

// BlockParamIndex returns the position of the block parameter for methods
// that carry one.
func BlockParamIndex(method string) (int, bool) {
	idx, ok := blockTagParamIndex[method]
	return idx, ok
}

func HexToInt64(hex string) (int64, error) {
	if !strings.HasPrefix(hex, "0x") && !strings.HasPrefix(hex, "0X") {
		return 0, fmt.Errorf("not a hex quantity: %q", hex)
	}
	return strconv.ParseInt(hex[2:], 16, 64)
}

func Int64ToHex(n int64) string {
	return "0x" + strconv.FormatInt(n, 16)
}
