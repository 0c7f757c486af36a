package core

import (
	"errors"

	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

// ErrGasEstimationFailed is returned when a message fails even at the
// highest allowed gas: the block gas limit, or the message's own gas limit
// when that is set and lower.
var ErrGasEstimationFailed = errors.New("core: gas required exceeds allowance")

// EstimateGas binary-searches the smallest gas limit at which the
// message succeeds. Each probe runs on a throwaway copy of the state.
func EstimateGas(config *ChainConfig, statedb *state.StateDB, header *types.Header, msg *Message) (uint64, error) {
	rules := config.Rules(header.Number, header.Time)

	var authCount uint64
	if msg.TxType == types.SetCodeTxType {
		authCount = uint64(len(msg.AuthList))
	}
	lo, err := IntrinsicGas(msg.Data, msg.AccessList, authCount, msg.IsCreate(), rules)
	if err != nil {
		return 0, err
	}
	lo--
	hi := header.GasLimit
	if msg.GasLimit != 0 && msg.GasLimit < hi {
		hi = msg.GasLimit
	}

	executable := func(gas uint64) bool {
		probe := *msg
		probe.GasLimit = gas
		gp := new(GasPool).AddGas(header.GasLimit)
		result, err := ApplyMessage(config, nil, statedb.Copy(), header, &probe, gp)
		if err != nil {
			return false
		}
		return !result.Failed()
	}

	if !executable(hi) {
		return 0, ErrGasEstimationFailed
	}

	for lo+1 < hi {
		mid := (lo + hi) / 2
		if executable(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}
