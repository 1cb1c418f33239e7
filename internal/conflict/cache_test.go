package conflict

import (
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func testRules() config.ConflictRules {
	return config.ConflictRules{KeepDuration: 10 * time.Minute}
}

func TestCache_Add_FirstSpendNeverConflicts(t *testing.T) {
	c := New(testRules())
	ref := types.TxOutputRef{Key: types.Hash{0x01}}
	txId := types.TxId{0xaa}

	_, conflicted := c.Add(ref, txId, time.Unix(1000, 0))
	if conflicted {
		t.Error("first spend of an output should never conflict")
	}
}

func TestCache_Add_SecondSpenderConflicts(t *testing.T) {
	c := New(testRules())
	ref := types.TxOutputRef{Key: types.Hash{0x01}}
	tx1 := types.TxId{0xaa}
	tx2 := types.TxId{0xbb}
	now := time.Unix(1000, 0)

	c.Add(ref, tx1, now)
	conflictWith, conflicted := c.Add(ref, tx2, now.Add(time.Minute))
	if !conflicted {
		t.Fatal("second spender of the same live output should conflict")
	}
	if conflictWith != tx1 {
		t.Errorf("conflict should report the original spender, got %s", conflictWith)
	}
}

func TestCache_Add_SameSpenderNotAConflict(t *testing.T) {
	c := New(testRules())
	ref := types.TxOutputRef{Key: types.Hash{0x01}}
	txId := types.TxId{0xaa}
	now := time.Unix(1000, 0)

	c.Add(ref, txId, now)
	_, conflicted := c.Add(ref, txId, now.Add(time.Minute))
	if conflicted {
		t.Error("re-adding the same spender should not be reported as a conflict")
	}
}

func TestCache_Add_ExpiredEntryDoesNotConflict(t *testing.T) {
	c := New(testRules())
	ref := types.TxOutputRef{Key: types.Hash{0x01}}
	tx1 := types.TxId{0xaa}
	tx2 := types.TxId{0xbb}
	now := time.Unix(1000, 0)

	c.Add(ref, tx1, now)
	_, conflicted := c.Add(ref, tx2, now.Add(time.Hour))
	if conflicted {
		t.Error("a spend older than KeepDuration should no longer be considered live")
	}
}

func TestCache_IsConflicted(t *testing.T) {
	c := New(testRules())
	ref := types.TxOutputRef{Key: types.Hash{0x01}}
	tx1 := types.TxId{0xaa}
	now := time.Unix(1000, 0)

	c.Add(ref, tx1, now)

	if c.IsConflicted(ref, tx1, now.Add(time.Minute)) {
		t.Error("the original spender should not see its own spend as conflicting")
	}
	if !c.IsConflicted(ref, types.TxId{0xbb}, now.Add(time.Minute)) {
		t.Error("a different tx should see the output as conflicted while live")
	}
	if c.IsConflicted(ref, types.TxId{0xbb}, now.Add(time.Hour)) {
		t.Error("an expired entry should not be reported as conflicted")
	}
}

func TestCache_Remove(t *testing.T) {
	c := New(testRules())
	ref := types.TxOutputRef{Key: types.Hash{0x01}}
	txId := types.TxId{0xaa}
	now := time.Unix(1000, 0)

	c.Add(ref, txId, now)
	c.Remove(ref)

	if c.IsConflicted(ref, types.TxId{0xbb}, now) {
		t.Error("a removed entry should not be conflicted")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Remove, got %d entries", c.Len())
	}
}

func TestCache_Evict(t *testing.T) {
	c := New(testRules())
	now := time.Unix(1000, 0)
	c.Add(types.TxOutputRef{Key: types.Hash{0x01}}, types.TxId{0xaa}, now)
	c.Add(types.TxOutputRef{Key: types.Hash{0x02}}, types.TxId{0xbb}, now.Add(time.Hour))

	evicted := c.Evict(now.Add(time.Hour))
	if evicted != 1 {
		t.Errorf("expected 1 stale entry evicted, got %d", evicted)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry remaining, got %d", c.Len())
	}
}
