package config

import "testing"

func TestForkSchedule_IsActive_ZeroNotScheduled(t *testing.T) {
	fs := ForkSchedule{}
	if fs.IsActive(0, 100) {
		t.Error("fork at height 0 (not scheduled) should not be active")
	}
}

func TestForkSchedule_IsActive_HeightReached(t *testing.T) {
	fs := ForkSchedule{}
	if !fs.IsActive(50, 50) {
		t.Error("fork at height 50 should be active at height 50")
	}
	if !fs.IsActive(50, 100) {
		t.Error("fork at height 50 should be active at height 100")
	}
}

func TestForkSchedule_IsActive_HeightNotReached(t *testing.T) {
	fs := ForkSchedule{}
	if fs.IsActive(50, 49) {
		t.Error("fork at height 50 should not be active at height 49")
	}
}

func TestGenesis_Validate_MainnetValid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_TestnetValid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_RejectsZeroGroups(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Groups = 0
	if err := g.Validate(); err == nil {
		t.Error("zero groups should be rejected")
	}
}

func TestGenesis_Validate_RejectsBadGasBounds(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.VM.MinimalGas = g.Protocol.VM.MaxGasPerTx + 1
	if err := g.Validate(); err == nil {
		t.Error("minimalGas > maxGasPerTx should be rejected")
	}
}

func TestGenesis_Validate_RejectsZeroMempoolCapacity(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Mempool.Capacity = 0
	if err := g.Validate(); err == nil {
		t.Error("zero mempool capacity should be rejected")
	}
}

func TestConsensusRules_BaseReward_NoHalving(t *testing.T) {
	c := ConsensusRules{BlockReward: 1000}
	if r := c.BaseReward(1_000_000); r != 1000 {
		t.Errorf("BaseReward = %d, want 1000", r)
	}
}

func TestConsensusRules_BaseReward_Halves(t *testing.T) {
	c := ConsensusRules{BlockReward: 1000, HalvingInterval: 100}
	if r := c.BaseReward(0); r != 1000 {
		t.Errorf("BaseReward(0) = %d, want 1000", r)
	}
	if r := c.BaseReward(100); r != 500 {
		t.Errorf("BaseReward(100) = %d, want 500", r)
	}
	if r := c.BaseReward(200); r != 250 {
		t.Errorf("BaseReward(200) = %d, want 250", r)
	}
}

func TestGenesis_HashDeterministic(t *testing.T) {
	g := MainnetGenesis()
	h1, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Error("genesis hash should be deterministic")
	}
}
