package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants. 1 ALF = 10^18 base units.
const (
	Decimals = 18
	ALF      = 1_000_000_000_000_000_000
	MilliALF = 1_000_000_000_000_000
	MicroALF = 1_000_000_000_000
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent.
const CoinbaseMaturity uint64 = 20

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction (MaxTxInputNum)
	MaxTxOutputs  = 2500      // Max outputs per transaction (MaxTxOutputNum)
	MaxScriptData = 65_536    // 64 KB max output data / script size (MaxOutputDataSize)
)

// VM gas/value limits (consensus-critical). Mirrors the source's
// maxGasPerTx/minimalGas/dustUtxoAmount config knobs.
const (
	MinimalGas       int64 = 20_000
	MaxGasPerTx      int64 = 5_000_000
	TxBaseGas        int64 = 1_000
	GasPerInput      int64 = 2_000
	GasPerOutput     int64 = 4_500
	GasPerScriptByte int64 = 1
)

// DefaultGasPrice and DustUtxoAmount are ALF-denominated defaults; a
// genesis may override both via ProtocolConfig.VM.
var (
	DefaultGasPrice = big.NewInt(100_000_000_000) // 100 Gwei-equivalent
	DustUtxoAmount  = new(big.Int).SetUint64(1_000_000_000_000_000) // 0.001 ALF
	// MaxALFValue bounds any single amount (output value, gas price) to
	// prevent overflow when summing across MaxTxOutputs outputs.
	MaxALFValue = new(big.Int).Lsh(big.NewInt(1), 128)
)

// DefaultGroups is the number of shards (G) BlockFlow runs with absent an
// explicit genesis override.
const DefaultGroups = 4

// Genesis holds the genesis block configuration and protocol rules,
// immutable after chain launch; changes require a hard fork.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Alloc maps bech32 address -> balance in base units, materialized as
	// the genesis asset outputs on each group's intra-chain.
	Alloc map[string]uint64 `json:"alloc"`

	Protocol ProtocolConfig `json:"protocol"`
}

// ForkSchedule defines block heights at which protocol upgrades activate.
type ForkSchedule struct{}

// IsActive returns true if a fork at forkHeight has activated at currentHeight.
func (f *ForkSchedule) IsActive(forkHeight, currentHeight uint64) bool {
	return forkHeight > 0 && currentHeight >= forkHeight
}

// ProtocolConfig holds every consensus-critical rule. All nodes MUST
// agree on these values; this is the struct referenced by spec.md §9:
// (groups G, consensus params, mempool params, VM params, conflict
// cache keepDuration).
type ProtocolConfig struct {
	Groups       int               `json:"groups"`
	Consensus    ConsensusRules    `json:"consensus"`
	Mempool      MempoolRules      `json:"mempool"`
	VM           VMRules           `json:"vm"`
	Conflict     ConflictRules     `json:"conflict"`
	Orchestrator OrchestratorRules `json:"orchestrator"`
	Forks        ForkSchedule      `json:"forks,omitempty"`
}

// ConsensusRules defines BlockFlow's PoW timing and reward schedule.
type ConsensusRules struct {
	// BlockTargetTime is the target interval between blocks on a single
	// chain.
	BlockTargetTime time.Duration `json:"block_target_time"`

	// RecentBlockTimestampDiff bounds how far a new block's timestamp may
	// lag behind wall-clock-recent ancestors before being rejected.
	RecentBlockTimestampDiff time.Duration `json:"recent_block_timestamp_diff"`

	// MaxMiningTarget is the easiest allowed PoW target (genesis
	// difficulty ceiling), compact-encoded the same way as block headers.
	MaxMiningTarget types.Target `json:"max_mining_target"`

	BlockReward     uint64 `json:"block_reward"`
	MaxSupply       uint64 `json:"max_supply"`
	HalvingInterval uint64 `json:"halving_interval,omitempty"`
}

// MempoolRules bounds the shared transaction pool.
type MempoolRules struct {
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
}

// VMRules carries the gas/value/size limits the VM and stateless
// transaction validation enforce.
type VMRules struct {
	MaxGasPerTx       int64  `json:"max_gas_per_tx"`
	MinimalGas        int64  `json:"minimal_gas"`
	DustUtxoAmount    uint64 `json:"dust_utxo_amount"`
	MaxTxInputNum     int    `json:"max_tx_input_num"`
	MaxTxOutputNum    int    `json:"max_tx_output_num"`
	MaxOutputDataSize int    `json:"max_output_data_size"`
}

// ConflictRules bounds internal/conflict's spent-output cache.
type ConflictRules struct {
	KeepDuration time.Duration `json:"keep_duration"`
}

// OrchestratorRules bounds the single-writer request queue that
// serializes all chain mutation.
type OrchestratorRules struct {
	// QueueCapacity is how many pending requests (AddBlock/AddTx/reads)
	// may back up before callers block. 0 or less selects the default
	// bound of 4096.
	QueueCapacity int `json:"queue_capacity"`
}

// BaseReward returns the coinbase reward for a block at the given
// height: BlockReward, halved every HalvingInterval blocks if one is
// configured. This stands in for the source's PoLW reward schedule,
// which the spec leaves unspecified beyond "config-provided function of
// height" (see Open Questions).
func (c *ConsensusRules) BaseReward(height uint64) uint64 {
	if c.HalvingInterval == 0 {
		return c.BlockReward
	}
	halvings := height / c.HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return c.BlockReward >> halvings
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// mustTarget encodes a non-negative power-of-two bound as a Target,
// panicking only on a programmer error (a negative or absurdly large
// input) — never on a genesis constant defined in this file.
func mustTarget(v *big.Int) types.Target {
	t, err := types.NewTargetFromInt(v)
	if err != nil {
		panic(err)
	}
	return t
}

func defaultProtocol() ProtocolConfig {
	return ProtocolConfig{
		Groups: DefaultGroups,
		Consensus: ConsensusRules{
			BlockTargetTime:          64 * time.Second,
			RecentBlockTimestampDiff: 30 * time.Minute,
			MaxMiningTarget:          mustTarget(new(big.Int).Lsh(big.NewInt(1), 234)),
			BlockReward:              2 * MilliALF,
			MaxSupply:                1_000_000_000 * ALF,
			HalvingInterval:          0,
		},
		Mempool: MempoolRules{
			Capacity: 10_000,
			TTL:      10 * time.Minute,
		},
		VM: VMRules{
			MaxGasPerTx:       MaxGasPerTx,
			MinimalGas:        MinimalGas,
			DustUtxoAmount:    DustUtxoAmount.Uint64(),
			MaxTxInputNum:     MaxTxInputs,
			MaxTxOutputNum:    MaxTxOutputs,
			MaxOutputDataSize: MaxScriptData,
		},
		Conflict: ConflictRules{
			KeepDuration: 10 * time.Minute,
		},
		Orchestrator: OrchestratorRules{
			QueueCapacity: 256,
		},
	}
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "blockflow-mainnet-1",
		ChainName: "BlockFlow Mainnet",
		Symbol:    "ALF",
		Timestamp: 1770734103,
		ExtraData: "BlockFlow Genesis",
		Alloc:     map[string]uint64{},
		Protocol:  defaultProtocol(),
	}
}

// TestnetGenesis returns the testnet genesis configuration: smaller
// group count and much lower difficulty so a laptop can mine it.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "blockflow-testnet-1"
	g.ChainName = "BlockFlow Testnet"
	g.ExtraData = "BlockFlow Testnet Genesis"
	g.Protocol.Groups = 2
	g.Protocol.Consensus.MaxMiningTarget = mustTarget(new(big.Int).Lsh(big.NewInt(1), 250))
	g.Protocol.Consensus.BlockTargetTime = 8 * time.Second
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that the genesis configuration is internally
// consistent.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Protocol.Groups < 1 {
		return fmt.Errorf("groups must be at least 1")
	}
	if g.Protocol.Consensus.BlockTargetTime <= 0 {
		return fmt.Errorf("block_target_time must be positive")
	}
	if g.Protocol.Consensus.BlockReward == 0 {
		return fmt.Errorf("block_reward must be positive")
	}
	if g.Protocol.VM.MaxGasPerTx <= 0 || g.Protocol.VM.MinimalGas <= 0 ||
		g.Protocol.VM.MinimalGas > g.Protocol.VM.MaxGasPerTx {
		return fmt.Errorf("invalid vm gas bounds")
	}
	if g.Protocol.Mempool.Capacity <= 0 {
		return fmt.Errorf("mempool.capacity must be positive")
	}

	var totalAlloc uint64
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		totalAlloc += v
	}
	if g.Protocol.Consensus.MaxSupply > 0 && totalAlloc > g.Protocol.Consensus.MaxSupply {
		return fmt.Errorf("genesis allocations (%d) exceed max_supply (%d)",
			totalAlloc, g.Protocol.Consensus.MaxSupply)
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration, used to
// identify the chain and detect genesis mismatches between peers.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
