package vm

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/trie"
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func newTestTrie() *trie.Trie {
	return trie.New(trie.NewDBNodeStore(storage.NewMemory()), types.Hash{})
}

// constTrueScript builds a single-method, no-field contract whose one
// method pushes true and returns it, the minimal legal asset script.
func constTrueScript(t *testing.T) []byte {
	t.Helper()
	c := &Contract{
		Methods: []Method{{
			IsPublic:   true,
			ReturnType: []ValType{TBool},
			Instrs: []Instruction{
				{Op: OpConstTrue},
				{Op: OpReturn},
			},
		}},
	}
	return EncodeContract(c)
}

func TestRunAssetScript_ReturnsTrue(t *testing.T) {
	v := New(nil, nil, nil)
	gasUsed, err := v.RunAssetScript(constTrueScript(t), nil, 1000)
	if err != nil {
		t.Fatalf("RunAssetScript: %v", err)
	}
	if gasUsed <= 0 {
		t.Errorf("expected positive gas usage, got %d", gasUsed)
	}
}

func TestRunAssetScript_ReturnsFalse_Fails(t *testing.T) {
	c := &Contract{
		Methods: []Method{{
			IsPublic:   true,
			ReturnType: []ValType{TBool},
			Instrs: []Instruction{
				{Op: OpConstFalse},
				{Op: OpReturn},
			},
		}},
	}
	v := New(nil, nil, nil)
	if _, err := v.RunAssetScript(EncodeContract(c), nil, 1000); err == nil {
		t.Fatal("expected an error when the script returns false")
	}
}

func TestRunAssetScript_OutOfGas(t *testing.T) {
	v := New(nil, nil, nil)
	if _, err := v.RunAssetScript(constTrueScript(t), nil, 0); err != ErrOutOfGas {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
}

// arithmeticScript computes 2+3 in U256 and asserts the result equals 5.
func arithmeticScript() []byte {
	c := &Contract{
		Methods: []Method{{
			IsPublic: true,
			Instrs: []Instruction{
				{Op: OpU256Const, IntOperand: 2},
				{Op: OpU256Const, IntOperand: 3},
				{Op: OpU256Add},
				{Op: OpU256Const, IntOperand: 5},
				{Op: OpEq},
				{Op: OpAssert},
				{Op: OpReturn},
			},
		}},
	}
	return EncodeContract(c)
}

func TestRunTxScript_Arithmetic(t *testing.T) {
	v := New(nil, nil, nil)
	// arithmeticScript's method returns no values and only asserts, so
	// exercise it through RunTxScript instead, which tolerates an empty
	// ReturnType.
	script := arithmeticScript()
	tr := newTestTrie()
	pool, err := NewContractPool(0)
	if err != nil {
		t.Fatalf("NewContractPool: %v", err)
	}
	v = New(tr, nil, pool)
	txn := &tx.Transaction{Unsigned: tx.UnsignedTx{ScriptOpt: script}}
	result, err := v.RunTxScript(txn, nil, txvalidate.BlockEnv{}, 1000)
	if err != nil {
		t.Fatalf("RunTxScript: %v", err)
	}
	if result.GasUsed <= 0 {
		t.Errorf("expected positive gas usage, got %d", result.GasUsed)
	}
}

func TestRunTxScript_CreateContract(t *testing.T) {
	tr := newTestTrie()
	pool, err := NewContractPool(0)
	if err != nil {
		t.Fatalf("NewContractPool: %v", err)
	}
	v := New(tr, nil, pool)

	// Deploy a contract with one U256 field and a public getter method
	// via CreateContract; the deployment records one generated output.
	callee := &Contract{
		FieldTypes: []ValType{TU256},
		Methods: []Method{
			{ // method 0: init, not reached directly by CallExternal
				IsPublic:     true,
				LocalsLength: 0,
			},
			{ // method 1: public getter returning the stored field
				IsPublic:   true,
				ReturnType: []ValType{TU256},
				Instrs: []Instruction{
					{Op: OpLoadField, IntOperand: 0},
					{Op: OpReturn},
				},
			},
		},
	}
	calleeBytes := EncodeContract(callee)

	deployer := &Contract{
		Methods: []Method{{
			IsPublic: true,
			Instrs: []Instruction{
				{Op: OpU256Const, IntOperand: 42},
				{Op: OpBytesConst, Bytes: calleeBytes},
				{Op: OpCreateContract},
			},
		}},
	}
	deployTx := &tx.Transaction{Unsigned: tx.UnsignedTx{ScriptOpt: EncodeContract(deployer)}}
	deployResult, err := v.RunTxScript(deployTx, nil, txvalidate.BlockEnv{}, 10000)
	if err != nil {
		t.Fatalf("deploy RunTxScript: %v", err)
	}
	if len(deployResult.GeneratedOutputs) != 1 {
		t.Fatalf("expected 1 generated output from CreateContract, got %d", len(deployResult.GeneratedOutputs))
	}
}
