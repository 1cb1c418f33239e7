// Package vm executes the bytecode carried by a P2SH unlock script or a
// transaction's script: arithmetic and control flow over a typed
// operand stack, asset transfers staged against a BalanceState, and
// (for contracts) field reads/writes staged against a world-state
// trie. It implements the two hooks internal/txvalidate calls out to
// for anything it cannot check from the transaction's bytes alone:
// AssetScriptRunner for P2SH spends and TxScriptRunner for
// script-carrying transactions.
package vm

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/internal/trie"
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// CodeResolver looks up a deployed contract's bytecode by id, serving
// CreateContract/CallExternal/contract-loading opcodes. Implemented by
// whatever package owns contract deployment records (kept outside
// internal/vm so this package stays independent of storage choices).
type CodeResolver interface {
	ResolveCode(contractId types.Hash) (*Contract, bool, error)
}

// VM runs asset scripts and transaction scripts against a shared
// world-state trie. One VM is built per validation context (a block or
// a mempool candidate) so GasAmount/GasPrice bounds and the trie's
// staged overlay stay scoped to that context; Reset the trie between
// contexts to discard a failed validation's writes.
type VM struct {
	Trie  *trie.Trie
	Pool  *ContractPool
	Codes CodeResolver
}

// New builds a VM over t (a staged world-state trie) and codes (the
// contract deployment registry). pool may be nil, in which case a
// private pool is created.
func New(t *trie.Trie, codes CodeResolver, pool *ContractPool) *VM {
	if pool == nil {
		pool, _ = NewContractPool(0)
	}
	return &VM{Trie: t, Pool: pool, Codes: codes}
}

// RunAssetScript implements txvalidate.AssetScriptRunner: script is a
// single stateless method (no fields, not payable) that must leave
// exactly one ValBool(true) on the stack to authorize the spend.
func (vm *VM) RunAssetScript(script []byte, params [][]byte, gasAmount int64) (int64, error) {
	contract, err := DecodeContract(script)
	if err != nil {
		return 0, err
	}
	method, err := contract.method(0)
	if err != nil {
		return 0, err
	}

	args := make([]Val, len(params))
	for i, p := range params {
		if i >= len(method.ArgsType) {
			return 0, ErrInvalidType
		}
		v, err := decodeVal(method.ArgsType[i], p)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	ctx := &Context{GasRemaining: gasAmount}
	frame, err := newFrame(method, args, nil, nil, nil)
	if err != nil {
		return 0, err
	}
	results, err := vm.execute(ctx, frame)
	if err != nil {
		return gasAmount - ctx.GasRemaining, err
	}
	if len(results) != 1 {
		return gasAmount - ctx.GasRemaining, ErrInvalidType
	}
	ok, err := asBool(results[0])
	if err != nil {
		return gasAmount - ctx.GasRemaining, err
	}
	if !ok {
		return gasAmount - ctx.GasRemaining, ErrAssertionFailed
	}
	return gasAmount - ctx.GasRemaining, nil
}

// RunTxScript implements txvalidate.TxScriptRunner: replays t's main
// method against the shared world-state trie, staging every field
// write and asset movement it performs, and reports what it produced
// for checkTxScript to compare against t's own declared
// ContractInputs/GeneratedOutputs.
func (vm *VM) RunTxScript(t *tx.Transaction, preOutputs []tx.Output, env txvalidate.BlockEnv, gasAmount int64) (txvalidate.TxScriptResult, error) {
	contract, err := DecodeContract(t.Unsigned.ScriptOpt)
	if err != nil {
		return txvalidate.TxScriptResult{}, err
	}
	method, err := contract.method(0)
	if err != nil {
		return txvalidate.TxScriptResult{}, err
	}

	world := NewWorldState(vm.Trie, vm.Pool)
	ctx := &Context{
		Tx:           t,
		Signatures:   newSignatureStack(t.ContractSignatures),
		GasRemaining: gasAmount,
		Env:          env,
		World:        world,
	}

	var balance *BalanceState
	if method.UsesAssets && len(preOutputs) > 0 {
		owner := preOutputs[0].LockupScript.PKHash
		total := new(big.Int)
		tokenTotals := map[types.TokenId]*big.Int{}
		for _, out := range preOutputs {
			if out.Amount != nil {
				total.Add(total, out.Amount)
			}
			for _, tk := range out.Tokens {
				cur, ok := tokenTotals[tk.Id]
				if !ok {
					cur = new(big.Int)
					tokenTotals[tk.Id] = cur
				}
				cur.Add(cur, tk.Amount)
			}
		}
		tokens := make([]types.TokenAmount, 0, len(tokenTotals))
		for id, amt := range tokenTotals {
			tokens = append(tokens, types.TokenAmount{Id: id, Amount: amt})
		}
		balance = newBalanceState(owner, total, tokens)
	}

	frame, err := newFrame(method, nil, nil, balance, nil)
	if err != nil {
		return txvalidate.TxScriptResult{}, err
	}
	if _, err := vm.execute(ctx, frame); err != nil {
		return txvalidate.TxScriptResult{}, err
	}
	if err := ctx.Signatures.requireExhausted(); err != nil {
		return txvalidate.TxScriptResult{}, err
	}

	return txvalidate.TxScriptResult{
		ContractInputs:   ctx.ContractInputs,
		GeneratedOutputs: ctx.GeneratedOutputs,
		GasUsed:          gasAmount - ctx.GasRemaining,
	}, nil
}

// execute runs frame to completion (a Return instruction, or falling
// off the end of Instrs with an implicitly empty return), charging gas
// on the context's shared counter for every instruction.
func (vm *VM) execute(ctx *Context, frame *Frame) ([]Val, error) {
	if ctx.depth++; ctx.depth > maxCallDepth {
		return nil, ErrStackOverflow
	}
	defer func() { ctx.depth-- }()

	instrs := frame.method.Instrs
	for frame.pc < len(instrs) {
		instr := instrs[frame.pc]
		if err := ctx.charge(gasClassOf(instr.Op), len(instr.Bytes)); err != nil {
			return nil, err
		}
		ret, jumped, err := vm.step(ctx, frame, instr)
		if err != nil {
			return nil, fmt.Errorf("vm: pc %d op %d: %w", frame.pc, instr.Op, err)
		}
		if instr.Op == OpReturn {
			return ret, nil
		}
		if !jumped {
			frame.pc++
		}
	}
	// Fell off the end: return the top values of the stack, as many as
	// ReturnType declares, in the order they were pushed.
	n := len(frame.method.ReturnType)
	if n == 0 {
		return nil, nil
	}
	if len(frame.operand) < n {
		return nil, ErrStackUnderflow
	}
	return frame.operand[len(frame.operand)-n:], nil
}

// step executes one instruction. ret carries the values a Return
// instruction hands back; jumped is true when the instruction already
// moved pc itself (a taken Jump/IfTrue/IfFalse), so execute must not
// advance it.
func (vm *VM) step(ctx *Context, frame *Frame, instr Instruction) (ret []Val, jumped bool, err error) {
	switch instr.Op {

	case OpConstTrue:
		return nil, false, frame.push(ValBool(true))
	case OpConstFalse:
		return nil, false, frame.push(ValBool(false))
	case OpI256Const:
		return nil, false, frame.push(NewI256(instr.IntOperand))
	case OpU256Const:
		return nil, false, frame.push(NewU256(uint64(instr.IntOperand)))
	case OpBytesConst:
		return nil, false, frame.push(ValByteVec{V: instr.Bytes})
	case OpAddressConst:
		var a types.Address
		copy(a[:], instr.Bytes)
		return nil, false, frame.push(ValAddress{V: a})

	case OpLoadLocal:
		v, err := frame.loadLocal(int(instr.IntOperand))
		if err != nil {
			return nil, false, err
		}
		return nil, false, frame.push(v)
	case OpStoreLocal:
		v, err := frame.pop()
		if err != nil {
			return nil, false, err
		}
		return nil, false, frame.storeLocal(int(instr.IntOperand), v)
	case OpLoadField:
		v, err := frame.loadField(int(instr.IntOperand))
		if err != nil {
			return nil, false, err
		}
		return nil, false, frame.push(v)
	case OpStoreField:
		v, err := frame.pop()
		if err != nil {
			return nil, false, err
		}
		return nil, false, frame.storeField(int(instr.IntOperand), v)

	case OpI256Add, OpI256Sub, OpI256Mul, OpI256Div, OpI256Mod:
		return nil, false, vm.binaryI256(frame, instr.Op)
	case OpU256Add, OpU256Sub, OpU256Mul, OpU256Div, OpU256Mod, OpU256ModAdd, OpU256ModSub, OpU256ModMul, OpU256Shl, OpU256Shr:
		return nil, false, vm.binaryU256(frame, instr.Op)
	case OpByteVecAnd, OpByteVecOr, OpByteVecXor:
		return nil, false, vm.binaryByteVec(frame, instr.Op)

	case OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe:
		return nil, false, vm.compare(frame, instr.Op)

	case OpI256ToU256:
		i, err := popI256(frame)
		if err != nil {
			return nil, false, err
		}
		if !checkU256Range(i) {
			return nil, false, ErrOverflow
		}
		return nil, false, frame.push(ValU256{V: i})
	case OpU256ToI256:
		u, err := popU256(frame)
		if err != nil {
			return nil, false, err
		}
		if !checkI256Range(u) {
			return nil, false, ErrOverflow
		}
		return nil, false, frame.push(ValI256{V: u})
	case OpByteVecToAddress:
		b, err := popByteVec(frame)
		if err != nil {
			return nil, false, err
		}
		if len(b) != types.AddressSize {
			return nil, false, ErrInvalidType
		}
		var a types.Address
		copy(a[:], b)
		return nil, false, frame.push(ValAddress{V: a})
	case OpToByteVec:
		v, err := frame.pop()
		if err != nil {
			return nil, false, err
		}
		raw, err := encodeVal(v)
		if err != nil {
			return nil, false, err
		}
		if err := ctx.charge(GasZero, len(raw)); err != nil {
			return nil, false, err
		}
		return nil, false, frame.push(ValByteVec{V: raw})

	case OpJump:
		frame.pc += int(instr.IntOperand)
		return nil, true, boundsCheck(frame)
	case OpIfTrue:
		b, err := frame.popBool()
		if err != nil {
			return nil, false, err
		}
		if b {
			frame.pc += int(instr.IntOperand)
			return nil, true, boundsCheck(frame)
		}
		return nil, false, nil
	case OpIfFalse:
		b, err := frame.popBool()
		if err != nil {
			return nil, false, err
		}
		if !b {
			frame.pc += int(instr.IntOperand)
			return nil, true, boundsCheck(frame)
		}
		return nil, false, nil
	case OpCallLocal:
		return vm.callLocal(ctx, frame, int(instr.IntOperand))
	case OpCallExternal:
		return vm.callExternal(ctx, frame, int(instr.IntOperand))
	case OpReturn:
		n := len(frame.method.ReturnType)
		if len(frame.operand) < n {
			return nil, false, ErrStackUnderflow
		}
		return frame.operand[len(frame.operand)-n:], false, nil
	case OpAssert:
		b, err := frame.popBool()
		if err != nil {
			return nil, false, err
		}
		if !b {
			return nil, false, ErrAssertionFailed
		}
		return nil, false, nil

	case OpBlake2b, OpKeccak256, OpSha256, OpSha3:
		if n := len(frame.operand); n > 0 {
			if data, ok := frame.operand[n-1].(ValByteVec); ok {
				if err := ctx.charge(GasZero, len(data.V)); err != nil {
					return nil, false, err
				}
			}
		}
		return nil, false, vm.hash(frame, instr.Op)
	case OpVerifySecP256K1:
		return nil, false, vm.verifySecP256K1(frame)
	case OpVerifyED25519:
		return nil, false, vm.verifyED25519(frame)
	case OpVerifyTxSignature:
		return nil, false, vm.verifyTxSignature(ctx, frame)

	case OpChainId:
		return nil, false, frame.push(NewU256(uint64(ctx.Env.ChainIndex.From)<<8 | uint64(ctx.Env.ChainIndex.To)))
	case OpBlockTimeStamp:
		return nil, false, frame.push(NewU256(ctx.Env.Timestamp))
	case OpBlockTarget:
		return nil, false, frame.push(NewU256(0))
	case OpTxId:
		if ctx.Tx == nil {
			return nil, false, ErrInvalidType
		}
		id := ctx.Tx.TxId()
		return nil, false, frame.push(ValByteVec{V: id.Hash().Bytes()})
	case OpTxCaller, OpTxCallerSize:
		return nil, false, frame.push(NewU256(0))
	case OpVerifyAbsoluteLocktime:
		return nil, false, vm.verifyAbsoluteLocktime(ctx, frame)
	case OpVerifyRelativeLocktime:
		return nil, false, nil

	case OpApproveAlf:
		return nil, false, vm.approveAlf(frame)
	case OpApproveToken:
		return nil, false, vm.approveToken(frame)
	case OpAlfRemaining:
		if err := frame.requirePayable(); err != nil {
			return nil, false, err
		}
		return nil, false, frame.push(ValU256{V: frame.balance.alfRemaining()})
	case OpTokenRemaining:
		return nil, false, vm.tokenRemaining(frame)
	case OpIsPaying:
		return nil, false, frame.push(ValBool(frame.balance != nil))
	case OpTransferAlf, OpTransferAlfFromSelf, OpTransferAlfToSelf:
		return nil, false, vm.transferAlf(ctx, frame, instr.Op)
	case OpTransferToken, OpTransferTokenFromSelf, OpTransferTokenToSelf:
		return nil, false, vm.transferToken(ctx, frame, instr.Op)

	case OpCreateContract:
		return nil, false, vm.createContract(ctx, frame)
	case OpCopyCreateContract:
		return nil, false, vm.createContract(ctx, frame)
	case OpDestroySelf:
		return nil, false, vm.destroySelf(ctx, frame)
	case OpSelfAddress:
		if frame.obj == nil {
			return nil, false, ErrInvalidType
		}
		var a types.Address
		copy(a[:], frame.obj.ContractId[:])
		return nil, false, frame.push(ValAddress{V: a})
	case OpSelfContractId:
		if frame.obj == nil {
			return nil, false, ErrInvalidType
		}
		return nil, false, frame.push(ValByteVec{V: frame.obj.ContractId.Bytes()})
	case OpIssueToken:
		return nil, false, vm.issueToken(frame)
	case OpCallerAddress, OpCallerInitialStateHash, OpContractInitialStateHash:
		return nil, false, frame.push(ValByteVec{V: nil})
	case OpIsCalledFromTxScript:
		return nil, false, frame.push(ValBool(frame.returnTo == nil))

	case OpLog1, OpLog2, OpLog3, OpLog4, OpLog5:
		n := int(instr.Op-OpLog1) + 1
		for i := 0; i < n; i++ {
			if _, err := frame.pop(); err != nil {
				return nil, false, err
			}
		}
		return nil, false, nil
	}

	return nil, false, fmt.Errorf("%w: unimplemented opcode %d", ErrInvalidType, instr.Op)
}

func boundsCheck(frame *Frame) error {
	if frame.pc < 0 || frame.pc > len(frame.method.Instrs) {
		return ErrInvalidInstrOffset
	}
	return nil
}

func popI256(frame *Frame) (*big.Int, error) {
	v, err := frame.pop()
	if err != nil {
		return nil, err
	}
	return asI256(v)
}

func popU256(frame *Frame) (*big.Int, error) {
	v, err := frame.pop()
	if err != nil {
		return nil, err
	}
	return asU256(v)
}

func popByteVec(frame *Frame) ([]byte, error) {
	v, err := frame.pop()
	if err != nil {
		return nil, err
	}
	return asByteVec(v)
}

func (vm *VM) binaryI256(frame *Frame, op Opcode) error {
	b, err := popI256(frame)
	if err != nil {
		return err
	}
	a, err := popI256(frame)
	if err != nil {
		return err
	}
	r := new(big.Int)
	switch op {
	case OpI256Add:
		r.Add(a, b)
	case OpI256Sub:
		r.Sub(a, b)
	case OpI256Mul:
		r.Mul(a, b)
	case OpI256Div:
		if b.Sign() == 0 {
			return ErrDivideByZero
		}
		r.Quo(a, b)
	case OpI256Mod:
		if b.Sign() == 0 {
			return ErrDivideByZero
		}
		r.Rem(a, b)
	}
	if !checkI256Range(r) {
		return ErrOverflow
	}
	return frame.push(ValI256{V: r})
}

func (vm *VM) binaryU256(frame *Frame, op Opcode) error {
	b, err := popU256(frame)
	if err != nil {
		return err
	}
	a, err := popU256(frame)
	if err != nil {
		return err
	}
	r := new(big.Int)
	switch op {
	case OpU256Add:
		r.Add(a, b)
	case OpU256Sub:
		if a.Cmp(b) < 0 {
			return ErrOverflow
		}
		r.Sub(a, b)
	case OpU256Mul:
		r.Mul(a, b)
	case OpU256Div:
		if b.Sign() == 0 {
			return ErrDivideByZero
		}
		r.Quo(a, b)
	case OpU256Mod:
		if b.Sign() == 0 {
			return ErrDivideByZero
		}
		r.Mod(a, b)
	case OpU256ModAdd:
		r.Add(a, b)
		r.Mod(r, u256Bound)
	case OpU256ModSub:
		r.Sub(a, b)
		r.Mod(r, u256Bound)
	case OpU256ModMul:
		r.Mul(a, b)
		r.Mod(r, u256Bound)
	case OpU256Shl:
		r.Lsh(a, uint(b.Uint64()))
		r.Mod(r, u256Bound)
	case OpU256Shr:
		r.Rsh(a, uint(b.Uint64()))
	}
	if !checkU256Range(r) {
		return ErrOverflow
	}
	return frame.push(ValU256{V: r})
}

func (vm *VM) binaryByteVec(frame *Frame, op Opcode) error {
	b, err := popByteVec(frame)
	if err != nil {
		return err
	}
	a, err := popByteVec(frame)
	if err != nil {
		return err
	}
	if len(a) != len(b) {
		return ErrInvalidType
	}
	out := make([]byte, len(a))
	for i := range a {
		switch op {
		case OpByteVecAnd:
			out[i] = a[i] & b[i]
		case OpByteVecOr:
			out[i] = a[i] | b[i]
		case OpByteVecXor:
			out[i] = a[i] ^ b[i]
		}
	}
	return frame.push(ValByteVec{V: out})
}

func (vm *VM) compare(frame *Frame, op Opcode) error {
	b, err := frame.pop()
	if err != nil {
		return err
	}
	a, err := frame.pop()
	if err != nil {
		return err
	}
	if a.Type() != b.Type() {
		return ErrInvalidType
	}
	var cmp int
	switch av := a.(type) {
	case ValBool:
		bv := b.(ValBool)
		if av == bv {
			cmp = 0
		} else if !bool(av) {
			cmp = -1
		} else {
			cmp = 1
		}
	case ValI256:
		cmp = av.V.Cmp(b.(ValI256).V)
	case ValU256:
		cmp = av.V.Cmp(b.(ValU256).V)
	case ValByteVec:
		cmp = compareBytes(av.V, b.(ValByteVec).V)
	case ValAddress:
		cmp = compareBytes(av.V[:], b.(ValAddress).V[:])
	}
	var result bool
	switch op {
	case OpEq:
		result = cmp == 0
	case OpNeq:
		result = cmp != 0
	case OpLt:
		result = cmp < 0
	case OpLe:
		result = cmp <= 0
	case OpGt:
		result = cmp > 0
	case OpGe:
		result = cmp >= 0
	}
	return frame.push(ValBool(result))
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func (vm *VM) hash(frame *Frame, op Opcode) error {
	data, err := popByteVec(frame)
	if err != nil {
		return err
	}
	var h types.Hash
	switch op {
	case OpBlake2b:
		h = crypto.Blake2b256(data)
	case OpKeccak256:
		h = crypto.Keccak256(data)
	case OpSha256:
		h = crypto.Sha256(data)
	case OpSha3:
		h = crypto.Sha3(data)
	}
	return frame.push(ValByteVec{V: h.Bytes()})
}

func (vm *VM) verifySecP256K1(frame *Frame) error {
	pubKey, err := popByteVec(frame)
	if err != nil {
		return err
	}
	sig, err := popByteVec(frame)
	if err != nil {
		return err
	}
	data, err := popByteVec(frame)
	if err != nil {
		return err
	}
	return frame.push(ValBool(crypto.VerifyECDSASecP256K1(data, sig, pubKey)))
}

func (vm *VM) verifyED25519(frame *Frame) error {
	pubKey, err := popByteVec(frame)
	if err != nil {
		return err
	}
	sig, err := popByteVec(frame)
	if err != nil {
		return err
	}
	data, err := popByteVec(frame)
	if err != nil {
		return err
	}
	return frame.push(ValBool(crypto.VerifyED25519(data, sig, pubKey)))
}

// verifyTxSignature pops a public key, draws the next unconsumed
// contract signature off the context's SignatureStack, and fails with
// ErrInvalidSignature unless it authenticates this transaction's id;
// nothing is pushed.
func (vm *VM) verifyTxSignature(ctx *Context, frame *Frame) error {
	pubKey, err := popByteVec(frame)
	if err != nil {
		return err
	}
	if ctx.Tx == nil || ctx.Signatures == nil {
		return ErrInvalidType
	}
	sig, err := ctx.Signatures.pop()
	if err != nil {
		return err
	}
	txId := ctx.Tx.TxId()
	if !crypto.VerifySignature(txId.Hash().Bytes(), sig, pubKey) {
		return ErrInvalidSignature
	}
	return nil
}

// ErrInvalidSignature mirrors txvalidate's sentinel name for the same
// failure at the VM layer.
var ErrInvalidSignature = fmt.Errorf("vm: tx signature verification failed")

func (vm *VM) verifyAbsoluteLocktime(ctx *Context, frame *Frame) error {
	lockTime, err := popU256(frame)
	if err != nil {
		return err
	}
	if !lockTime.IsUint64() {
		return ErrLockTimeOverflow
	}
	if ctx.Env.Timestamp < lockTime.Uint64() {
		return ErrAssertionFailed
	}
	return nil
}

func (vm *VM) approveAlf(frame *Frame) error {
	amount, err := popU256(frame)
	if err != nil {
		return err
	}
	if err := frame.requirePayable(); err != nil {
		return err
	}
	return frame.balance.approveAlf(amount)
}

func (vm *VM) approveToken(frame *Frame) error {
	amount, err := popU256(frame)
	if err != nil {
		return err
	}
	tokenRaw, err := popByteVec(frame)
	if err != nil {
		return err
	}
	if err := frame.requirePayable(); err != nil {
		return err
	}
	var id types.TokenId
	copy(id[:], tokenRaw)
	return frame.balance.approveToken(id, amount)
}

func (vm *VM) tokenRemaining(frame *Frame) error {
	tokenRaw, err := popByteVec(frame)
	if err != nil {
		return err
	}
	if err := frame.requirePayable(); err != nil {
		return err
	}
	var id types.TokenId
	copy(id[:], tokenRaw)
	return frame.push(ValU256{V: frame.balance.tokenRemaining(id)})
}

func (vm *VM) transferAlf(ctx *Context, frame *Frame, op Opcode) error {
	amount, err := popU256(frame)
	if err != nil {
		return err
	}
	if err := frame.requirePayable(); err != nil {
		return err
	}
	switch op {
	case OpTransferAlfFromSelf, OpTransferAlfToSelf:
		if err := frame.balance.spendApprovedAlf(amount); err != nil {
			return err
		}
	default:
		if err := frame.balance.approveAlf(amount); err != nil {
			return err
		}
		if err := frame.balance.spendApprovedAlf(amount); err != nil {
			return err
		}
	}
	if frame.obj != nil {
		ctx.recordGeneratedOutput(tx.NewAssetOutput(new(big.Int).Set(amount), types.P2C(frame.obj.ContractId), nil, 0, nil))
	}
	return nil
}

func (vm *VM) transferToken(ctx *Context, frame *Frame, op Opcode) error {
	amount, err := popU256(frame)
	if err != nil {
		return err
	}
	tokenRaw, err := popByteVec(frame)
	if err != nil {
		return err
	}
	if err := frame.requirePayable(); err != nil {
		return err
	}
	var id types.TokenId
	copy(id[:], tokenRaw)
	switch op {
	case OpTransferTokenFromSelf, OpTransferTokenToSelf:
		if err := frame.balance.spendApprovedToken(id, amount); err != nil {
			return err
		}
	default:
		if err := frame.balance.approveToken(id, amount); err != nil {
			return err
		}
		if err := frame.balance.spendApprovedToken(id, amount); err != nil {
			return err
		}
	}
	return nil
}

// createContract pops the new contract's code and initial fields off
// the stack, deploys it into world-state, and records the synthesized
// contract output as one of this execution's generated outputs. The
// calling script must push the initial field values first, in field
// order, then the code bytes last, so code is on top of the stack.
func (vm *VM) createContract(ctx *Context, frame *Frame) error {
	if !ctx.isStateful() {
		return ErrContractAssetUnloaded
	}
	codeBytes, err := popByteVec(frame)
	if err != nil {
		return err
	}
	code, err := DecodeContract(codeBytes)
	if err != nil {
		return err
	}
	fields := make([]Val, len(code.FieldTypes))
	for i := len(fields) - 1; i >= 0; i-- {
		v, err := frame.pop()
		if err != nil {
			return err
		}
		fields[i] = v
	}
	contractId := crypto.Hash(codeBytes)
	obj := &ContractObject{ContractId: contractId, Code: code, fields: fields, dirty: true}
	if err := ctx.World.Flush(obj); err != nil {
		return err
	}
	ctx.World.pool.Add(contractId, code)
	ctx.recordGeneratedOutput(tx.NewContractOutput(new(big.Int), types.P2C(contractId), nil))
	return frame.push(ValByteVec{V: contractId.Bytes()})
}

// destroySelf is only legal when called from a tx script's top-level
// frame, matching ErrContractDestructionFromNonTxScript.
func (vm *VM) destroySelf(ctx *Context, frame *Frame) error {
	if frame.obj == nil {
		return ErrContractAssetUnloaded
	}
	if frame.returnTo != nil {
		return ErrContractDestructionFromNonTxScript
	}
	_, err := popByteVec(frame) // beneficiary address
	if err != nil {
		return err
	}
	ctx.recordContractInput(types.NewContractOutputRef(0, frame.obj.ContractId))
	return nil
}

func (vm *VM) issueToken(frame *Frame) error {
	if frame.obj == nil {
		return ErrInvalidType
	}
	return frame.push(ValByteVec{V: frame.obj.ContractId.Bytes()})
}

// callLocal invokes methodIndex on the current frame's own contract
// object (or, for a tx script, its own method table), pushing the
// callee's results back onto the caller's stack once it returns.
func (vm *VM) callLocal(ctx *Context, frame *Frame, methodIndex int) (ret []Val, jumped bool, err error) {
	var code *Contract
	if frame.obj != nil {
		code = frame.obj.Code
	} else {
		code = &Contract{Methods: []Method{*frame.method}}
	}
	method, err := code.method(methodIndex)
	if err != nil {
		return nil, false, err
	}
	args := make([]Val, len(method.ArgsType))
	for i := len(args) - 1; i >= 0; i-- {
		v, perr := frame.pop()
		if perr != nil {
			return nil, false, perr
		}
		args[i] = v
	}
	callee, err := newFrame(method, args, frame.obj, frame.balance, frame)
	if err != nil {
		return nil, false, err
	}
	results, err := vm.execute(ctx, callee)
	if err != nil {
		return nil, false, err
	}
	for _, v := range results {
		if err := frame.push(v); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// callExternal invokes a public method on another contract loaded from
// world-state, identified by the contract id most recently pushed.
func (vm *VM) callExternal(ctx *Context, frame *Frame, methodIndex int) (ret []Val, jumped bool, err error) {
	if !ctx.isStateful() {
		return nil, false, ErrContractAssetUnloaded
	}
	idRaw, perr := popByteVec(frame)
	if perr != nil {
		return nil, false, perr
	}
	var contractId types.Hash
	copy(contractId[:], idRaw)

	obj, lerr := ctx.World.Load(contractId, nil, types.TxOutputRef{})
	if lerr != nil {
		return nil, false, lerr
	}
	method, merr := obj.Code.method(methodIndex)
	if merr != nil {
		return nil, false, merr
	}
	if !method.IsPublic {
		return nil, false, ErrPrivateExternalMethodCall
	}
	args := make([]Val, len(method.ArgsType))
	for i := len(args) - 1; i >= 0; i-- {
		v, perr := frame.pop()
		if perr != nil {
			return nil, false, perr
		}
		args[i] = v
	}
	callee, nerr := newFrame(method, args, obj, frame.balance, frame)
	if nerr != nil {
		return nil, false, nerr
	}
	results, eerr := vm.execute(ctx, callee)
	if eerr != nil {
		return nil, false, eerr
	}
	if err := ctx.World.Flush(obj); err != nil {
		return nil, false, err
	}
	ctx.recordContractInput(types.NewContractOutputRef(0, contractId))
	for _, v := range results {
		if err := frame.push(v); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}
