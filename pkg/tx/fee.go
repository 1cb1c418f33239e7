package tx

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/config"
)

// EstimateGas returns the gas a transaction with the given shape should
// be charged: a fixed base plus a per-input, per-output, and
// per-script-byte charge, mirroring how the VM prices execution before
// any script actually runs.
func EstimateGas(numInputs, numOutputs, scriptLen int) int64 {
	gas := config.TxBaseGas +
		int64(numInputs)*config.GasPerInput +
		int64(numOutputs)*config.GasPerOutput +
		int64(scriptLen)*config.GasPerScriptByte
	if gas < config.MinimalGas {
		gas = config.MinimalGas
	}
	return gas
}

// GasFee returns gasAmount * gasPrice, the fee a transaction pays
// regardless of whether its script runs to completion.
func GasFee(gasAmount int64, gasPrice *big.Int) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(big.NewInt(gasAmount), gasPrice)
}

// RequiredFee returns the fee a fully built transaction pays at its own
// gas amount and price.
func RequiredFee(t *Transaction) *big.Int {
	return GasFee(t.Unsigned.GasAmount, t.Unsigned.GasPrice)
}
