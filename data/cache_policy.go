package data

import (
	"time"

	"github.com/rpcmux/rpcmux/common"
)

type ValidityMode int

const (
	// ValidityNone means the method must never be cached.
	ValidityNone ValidityMode = iota
	// ValidityTTL is for results that are immutable by identity (lookups by
	// hash); they only need a time bound against pathological reorgs.
	ValidityTTL
	// ValidityHeight is for tag-relative results ("latest" balance, head
	// number); they are valid only until any node reports a newer head.
	ValidityHeight
)

type CachePolicy struct {
	Mode ValidityMode
	TTL  time.Duration
}

// immutableByIdentity lists methods whose result is fully determined by the
// request parameters (hash lookups and similar).
var immutableByIdentity = map[string]bool{
	"eth_getTransactionReceipt":             true,
	"eth_getTransactionByHash":              true,
	"eth_getBlockByHash":                    true,
	"eth_getTransactionByBlockHashAndIndex": true,
	"eth_getUncleByBlockHashAndIndex":       true,
	"eth_getBlockTransactionCountByHash":    true,
	"eth_chainId":                           true,
}

// neverCache lists non-idempotent or state-mutating methods, plus filter and
// subscription methods whose results are coupled to server-side state.
var neverCache = map[string]bool{
	"eth_sendRawTransaction":   true,
	"eth_sendTransaction":      true,
	"eth_sign":                 true,
	"eth_signTransaction":      true,
	"eth_newFilter":            true,
	"eth_newBlockFilter":       true,
	"eth_uninstallFilter":      true,
	"eth_getFilterChanges":     true,
	"eth_getFilterLogs":        true,
	"eth_subscribe":            true,
	"eth_unsubscribe":          true,
	"eth_syncing":              true,
	"txpool_content":           true,
	"txpool_status":            true,
}

// PolicyFor decides cacheability of a request. Tag-relative requests get
// height-based validity; identity lookups get a TTL; anything unknown or
// state-mutating is not cached.
func PolicyFor(method string, params []interface{}, immutableTTL time.Duration) CachePolicy {
	if neverCache[method] {
		return CachePolicy{Mode: ValidityNone}
	}
	if immutableByIdentity[method] {
		return CachePolicy{Mode: ValidityTTL, TTL: immutableTTL}
	}
	switch common.ExtractBlockTag(method, params) {
	case common.BlockTagLatest, common.BlockTagPending, common.BlockTagFinalized, common.BlockTagSafe:
		return CachePolicy{Mode: ValidityHeight}
	case common.BlockTagEarliest:
		return CachePolicy{Mode: ValidityTTL, TTL: immutableTTL}
	}
	if _, ok := common.BlockParamIndex(method); ok {
		// Concrete block number pinned in params; result is stable.
		return CachePolicy{Mode: ValidityTTL, TTL: immutableTTL}
	}
	return CachePolicy{Mode: ValidityNone}
}
