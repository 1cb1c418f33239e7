package vm

// GasClass buckets every instruction into one of the cost tiers the
// specification names; a per-byte surcharge is added on top for the
// classes that scale with data size (Hash, byte-vector conversions).
type GasClass uint8

const (
	GasZero GasClass = iota
	GasVeryLow
	GasLow
	GasMid
	GasHigh
	GasCall
	GasHash
	GasSignature
	GasBalance
	GasCreate
	GasDestroy
)

// baseGas is the fixed cost of each gas class, named after the
// teacher's G_zero/G_base/G_verylow/... ladder (internal/vm/gas.go in
// the klaytn reference pack) but retargeted to this VM's own class set
// rather than EVM's.
var baseGas = map[GasClass]int64{
	GasZero:      0,
	GasVeryLow:   3,
	GasLow:       5,
	GasMid:       8,
	GasHigh:      10,
	GasCall:      20,
	GasHash:      30,
	GasSignature: 100,
	GasBalance:   15,
	GasCreate:    200,
	GasDestroy:   20,
}

// perByteGas is the additional per-byte cost for classes whose cost
// scales with input size (Hash, *ToByteVec conversions).
const perByteGas int64 = 1

// chargeGas decrements gasRemaining by class's cost plus extraBytes *
// perByteGas, returning ErrOutOfGas if the counter would go negative.
// The counter is a monotone decrement: chargeGas never refunds.
func chargeGas(gasRemaining *int64, class GasClass, extraBytes int) error {
	cost := baseGas[class] + int64(extraBytes)*perByteGas
	if *gasRemaining < cost {
		*gasRemaining = 0
		return ErrOutOfGas
	}
	*gasRemaining -= cost
	return nil
}
