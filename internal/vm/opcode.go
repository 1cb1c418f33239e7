package vm

// Opcode is a single VM bytecode instruction tag. The constants below
// are grouped by prefix exactly as the instruction-set taxonomy
// describes: constants, locals/fields, arithmetic, comparison/
// conversion, control, crypto, env, assets, contract lifecycle, and
// logging.
type Opcode uint16

const (
	// Constants.
	OpConstTrue Opcode = iota
	OpConstFalse
	OpI256Const
	OpU256Const
	OpBytesConst
	OpAddressConst

	// Locals/fields.
	OpLoadLocal
	OpStoreLocal
	OpLoadField
	OpStoreField

	// Arithmetic (checked; overflow aborts the frame).
	OpI256Add
	OpI256Sub
	OpI256Mul
	OpI256Div
	OpI256Mod
	OpU256Add
	OpU256Sub
	OpU256Mul
	OpU256Div
	OpU256Mod
	OpU256ModAdd
	OpU256ModSub
	OpU256ModMul
	OpByteVecAnd
	OpByteVecOr
	OpByteVecXor
	OpU256Shl
	OpU256Shr

	// Comparison/conversion.
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpI256ToU256
	OpU256ToI256
	OpByteVecToAddress
	OpToByteVec

	// Control.
	OpJump
	OpIfTrue
	OpIfFalse
	OpCallLocal
	OpCallExternal
	OpReturn
	OpAssert

	// Crypto.
	OpBlake2b
	OpKeccak256
	OpSha256
	OpSha3
	OpVerifyTxSignature
	OpVerifySecP256K1
	OpVerifyED25519

	// Env.
	OpChainId
	OpBlockTimeStamp
	OpBlockTarget
	OpTxId
	OpTxCaller
	OpTxCallerSize
	OpVerifyAbsoluteLocktime
	OpVerifyRelativeLocktime

	// Assets.
	OpApproveAlf
	OpApproveToken
	OpAlfRemaining
	OpTokenRemaining
	OpIsPaying
	OpTransferAlf
	OpTransferAlfFromSelf
	OpTransferAlfToSelf
	OpTransferToken
	OpTransferTokenFromSelf
	OpTransferTokenToSelf

	// Contract lifecycle.
	OpCreateContract
	OpCopyCreateContract
	OpDestroySelf
	OpSelfAddress
	OpSelfContractId
	OpIssueToken
	OpCallerAddress
	OpIsCalledFromTxScript
	OpCallerInitialStateHash
	OpContractInitialStateHash

	// Logging.
	OpLog1
	OpLog2
	OpLog3
	OpLog4
	OpLog5
)

// gasClassOf returns the gas class the given opcode is charged at.
// Where the spec names a class explicitly (crypto, assets, contract
// lifecycle) this follows it; arithmetic/comparison default to
// VeryLow/Low as the generic "cheap instruction" tier, and control flow
// (Jump/IfTrue/IfFalse/Assert/Return) is charged at Mid.
func gasClassOf(op Opcode) GasClass {
	switch op {
	case OpConstTrue, OpConstFalse:
		return GasZero
	case OpLoadLocal, OpStoreLocal, OpLoadField, OpStoreField:
		return GasVeryLow
	case OpI256Add, OpI256Sub, OpU256Add, OpU256Sub, OpByteVecAnd, OpByteVecOr, OpByteVecXor,
		OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe:
		return GasVeryLow
	case OpI256Mul, OpU256Mul, OpI256Div, OpU256Div, OpI256Mod, OpU256Mod,
		OpU256ModAdd, OpU256ModSub, OpU256ModMul, OpU256Shl, OpU256Shr:
		return GasLow
	case OpI256ToU256, OpU256ToI256, OpByteVecToAddress, OpToByteVec,
		OpI256Const, OpU256Const, OpBytesConst, OpAddressConst:
		return GasVeryLow
	case OpJump, OpIfTrue, OpIfFalse, OpAssert, OpReturn:
		return GasMid
	case OpCallLocal, OpCallExternal:
		return GasCall
	case OpBlake2b, OpKeccak256, OpSha256, OpSha3:
		return GasHash
	case OpVerifyTxSignature, OpVerifySecP256K1, OpVerifyED25519:
		return GasSignature
	case OpChainId, OpBlockTimeStamp, OpBlockTarget, OpTxId, OpTxCaller, OpTxCallerSize:
		return GasVeryLow
	case OpVerifyAbsoluteLocktime, OpVerifyRelativeLocktime:
		return GasLow
	case OpApproveAlf, OpApproveToken, OpAlfRemaining, OpTokenRemaining, OpIsPaying,
		OpTransferAlf, OpTransferAlfFromSelf, OpTransferAlfToSelf,
		OpTransferToken, OpTransferTokenFromSelf, OpTransferTokenToSelf:
		return GasBalance
	case OpCreateContract, OpCopyCreateContract, OpIssueToken:
		return GasCreate
	case OpDestroySelf:
		return GasDestroy
	case OpSelfAddress, OpSelfContractId, OpCallerAddress, OpIsCalledFromTxScript,
		OpCallerInitialStateHash, OpContractInitialStateHash:
		return GasLow
	case OpLog1, OpLog2, OpLog3, OpLog4, OpLog5:
		return GasMid
	default:
		return GasVeryLow
	}
}

// Instruction is one decoded bytecode instruction. Operand use depends
// on Op: jumps/calls/locals/fields use IntOperand (and for Jump/IfTrue/
// IfFalse it is a displacement in [-2^16, 2^16] per the spec), constant
// pushes use IntOperand for I256Const/U256Const and Bytes for
// BytesConst/AddressConst, and LogN's N is implied by the opcode.
type Instruction struct {
	Op         Opcode
	IntOperand int64
	Bytes      []byte
}
