package gateway

import (
	"encoding/hex"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

var (
	rateBucketPrefix    = []byte("gateway/rate/")
	rateThresholdPrefix = []byte("gateway/limit/")
	blockCapPrefix      = []byte("gateway/blockcap/")
	settledRecordPrefix = []byte("gateway/settled/")
	settledIndexKey     = []byte("gateway/settled/index")
	vaultBalancePrefix  = []byte("gateway/vault/")
	capsConfigKey       = []byte("gateway/params/caps")
	blockCapConfigKey   = []byte("gateway/params/blockcap")
	epochDurationKey    = []byte("gateway/params/epoch")
	pausedKey           = []byte("gateway/params/paused")
)

// Storage abstracts the subset of state manager functionality required by the
// gateway engines.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

func rateBucketKey(token common.Address, epochID uint64) []byte {
	suffix := hex.EncodeToString(token[:])
	epoch := strconv.FormatUint(epochID, 10)
	key := make([]byte, 0, len(rateBucketPrefix)+len(suffix)+1+len(epoch))
	key = append(key, rateBucketPrefix...)
	key = append(key, suffix...)
	key = append(key, '/')
	key = append(key, epoch...)
	return key
}

func rateThresholdKey(token common.Address) []byte {
	suffix := hex.EncodeToString(token[:])
	key := make([]byte, 0, len(rateThresholdPrefix)+len(suffix))
	key = append(key, rateThresholdPrefix...)
	key = append(key, suffix...)
	return key
}

func blockCapKey(slot uint64) []byte {
	suffix := strconv.FormatUint(slot, 10)
	key := make([]byte, 0, len(blockCapPrefix)+len(suffix))
	key = append(key, blockCapPrefix...)
	key = append(key, suffix...)
	return key
}

func settledRecordKey(txID common.Hash) []byte {
	suffix := hex.EncodeToString(txID[:])
	key := make([]byte, 0, len(settledRecordPrefix)+len(suffix))
	key = append(key, settledRecordPrefix...)
	key = append(key, suffix...)
	return key
}

func vaultBalanceKey(token common.Address) []byte {
	suffix := hex.EncodeToString(token[:])
	key := make([]byte, 0, len(vaultBalancePrefix)+len(suffix))
	key = append(key, vaultBalancePrefix...)
	key = append(key, suffix...)
	return key
}
