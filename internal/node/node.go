// Package node provides a reusable blockchain node that can be embedded
// in any binary (daemon, Qt wallet, etc.).
//
// It wires every BlockFlow engine component into a runnable whole:
// storage, the per-chain store, the DAG tip tracker, the world-state
// trie, transaction and block validation, the mempool, and the
// single-writer orchestrator that serializes every mutation to them.
// It generalizes the teacher's flat single-chain Node (storage + chain
// + mempool + P2P + RPC, wired by hand in New/Start) to BlockFlow's
// G x G chain set, built from internal/orchestrator rather than a bare
// mutex.
//
// Peer transport and the RPC surface are external collaborators this
// engine only defines typed message shapes for (internal/p2p); this
// package drives genesis bootstrap and local mining instead.
package node

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/blockflow"
	"github.com/Klingon-tech/klingnet-chain/internal/blockvalidate"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstore"
	"github.com/Klingon-tech/klingnet-chain/internal/conflict"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/orchestrator"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/trie"
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/internal/vm"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Node owns one BlockFlow engine instance: the storage handle and every
// component built over it, plus an optional local miner loop per owned
// group.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis

	db   storage.DB
	cols *storage.Columns

	store   *chainstore.Store
	outputs *chainstore.OutputSet
	flow    *blockflow.Flow
	world   *trie.Trie
	conf    *conflict.Cache
	txs     *txvalidate.Validator
	blocks  *blockvalidate.Validator
	pool    *mempool.Pool
	orch    *orchestrator.Orchestrator
	engine  *consensus.PoW

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Node over cfg and its network's genesis, without
// starting anything. Storage is opened and, if empty, bootstrapped from
// genesis.
func New(cfg *config.Config) (*Node, error) {
	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	genesis := config.GenesisFor(cfg.Network)

	db, err := storage.NewBadger(cfg.ChainDataDir())
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}
	cols := storage.NewColumns(db)

	store := chainstore.New(cols)
	outputs := chainstore.NewOutputSet(cols)
	flow := blockflow.New(store, genesis.Protocol.Groups)
	conf := conflict.New(genesis.Protocol.Conflict)

	rootHash, err := store.GetTrieRoot()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node: load trie root: %w", err)
	}
	world := trie.New(trie.NewDBNodeStore(cols.Trie), rootHash)

	contractPool, err := vm.NewContractPool(0)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node: create contract pool: %w", err)
	}
	engineVM := vm.New(world, nil, contractPool)

	txs := txvalidate.New(outputs, conf, genesis.Protocol.VM.DustUtxoAmount)
	txs.AssetRunner = engineVM
	txs.TxRunner = engineVM

	blocks := blockvalidate.New(flow, store, txs, conf, genesis.Protocol.Consensus, genesis.Protocol.Groups)

	envFn := func() txvalidate.BlockEnv {
		return txvalidate.BlockEnv{
			Timestamp: uint64(time.Now().UnixMilli()),
			Groups:    genesis.Protocol.Groups,
		}
	}
	mpool := mempool.New(txs, genesis.Protocol.Mempool, envFn)

	orch := orchestrator.New(flow, store, outputs, world, mpool, blocks, genesis.Protocol.Groups, genesis.Protocol.Orchestrator)

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		db:      db,
		cols:    cols,
		store:   store,
		outputs: outputs,
		flow:    flow,
		world:   world,
		conf:    conf,
		txs:     txs,
		blocks:  blocks,
		pool:    mpool,
		orch:    orch,
		engine:  consensus.NewPoW(cfg.Mining.Threads),
	}

	if err := n.ensureGenesis(); err != nil {
		db.Close()
		return nil, fmt.Errorf("node: bootstrap genesis: %w", err)
	}

	return n, nil
}

type allocEntry struct {
	lockup types.LockupScript
	amount uint64
}

// ensureGenesis mines and stores one genesis block per group if that
// group's chain is empty, allocating config.Genesis.Alloc's balances
// onto whichever group each address belongs to.
func (n *Node) ensureGenesis() error {
	groups := n.genesis.Protocol.Groups

	allocByGroup := make(map[types.GroupIndex][]allocEntry)
	for addrStr, amount := range n.genesis.Alloc {
		addr, perr := types.ParseAddress(addrStr)
		if perr != nil {
			return fmt.Errorf("genesis alloc address %q: %w", addrStr, perr)
		}
		lockup := types.P2PKH(addr)
		g := lockup.GroupIndexOf(crypto.Hash, groups)
		allocByGroup[g] = append(allocByGroup[g], allocEntry{lockup: lockup, amount: amount})
	}

	bootstrapped := false
	for g := 0; g < groups; g++ {
		group := types.GroupIndex(g)
		ci := types.ChainIndex{From: group, To: group}

		tipHash, _, err := n.store.GetTip(ci)
		if err != nil {
			return err
		}
		if !tipHash.IsZero() {
			continue
		}

		coinbase := genesisCoinbase(allocByGroup[group])
		header := block.NewGenesisHeader(groups, types.Hash{}, n.genesis.Protocol.Consensus.MaxMiningTarget)
		blk := block.NewBlock(header, nil, coinbase)
		header.TxsHash = blk.TxsHash()

		if err := n.engine.Seal(context.Background(), header, groups, ci); err != nil {
			return fmt.Errorf("seal genesis for group %d: %w", g, err)
		}

		if err := n.store.PutBlock(blk); err != nil {
			return fmt.Errorf("store genesis for group %d: %w", g, err)
		}
		if err := n.flow.TryExtend(blk); err != nil {
			return fmt.Errorf("extend with genesis for group %d: %w", g, err)
		}
		if err := n.outputs.ApplyBlock(blk.Transactions); err != nil {
			return fmt.Errorf("apply genesis outputs for group %d: %w", g, err)
		}
		bootstrapped = true

		klog.Chain.Info().
			Int("group", g).
			Str("hash", blk.Hash().String()).
			Msg("genesis block mined")
	}

	if !bootstrapped {
		return nil
	}
	root, err := n.world.Commit()
	if err != nil {
		return fmt.Errorf("commit genesis world state: %w", err)
	}
	if err := n.store.SetTrieRoot(root); err != nil {
		return fmt.Errorf("persist genesis trie root: %w", err)
	}
	return nil
}

// genesisCoinbase builds a group's genesis coinbase transaction, one
// output per allocated address, with the teacher's synthetic
// zero-value input ref marking it as a coinbase.
func genesisCoinbase(allocs []allocEntry) *tx.Transaction {
	b := tx.NewBuilder()
	for _, a := range allocs {
		b.AddOutput(new(big.Int).SetUint64(a.amount), a.lockup)
	}
	coinbase := b.Build()
	coinbase.Unsigned.Inputs = []tx.TxInput{{OutputRef: types.TxOutputRef{}}}
	coinbase.Unsigned.GasAmount = 0
	coinbase.Unsigned.GasPrice = new(big.Int)
	return coinbase
}

// Start launches the node's background loops: a local miner per owned
// group if mining is enabled, and mempool eviction housekeeping.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.wg.Add(1)
	go n.runEvictionLoop()

	if n.cfg.Mining.Enabled {
		if n.cfg.Mining.Coinbase == "" {
			return fmt.Errorf("node: mining.enabled requires mining.coinbase")
		}
		coinbaseAddr, err := types.ParseAddress(n.cfg.Mining.Coinbase)
		if err != nil {
			return fmt.Errorf("node: invalid mining.coinbase: %w", err)
		}
		for _, g := range n.ownedGroups() {
			n.wg.Add(1)
			go n.runMiner(g, coinbaseAddr)
		}
	}

	klog.Chain.Info().
		Str("network", string(n.cfg.Network)).
		Int("groups", n.genesis.Protocol.Groups).
		Bool("mining", n.cfg.Mining.Enabled).
		Msg("node started")
	return nil
}

// Stop signals every background loop to exit, waits for them, and
// closes storage.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	n.orch.Close()
	n.db.Close()
}

// ownedGroups returns the contiguous range of groups this broker is
// responsible for mining and storing full blocks of, per
// config.Config's BrokerNum/BrokerId partition.
func (n *Node) ownedGroups() []types.GroupIndex {
	groups := n.genesis.Protocol.Groups
	brokerNum := n.cfg.BrokerNum
	if brokerNum < 1 {
		brokerNum = 1
	}
	start := n.cfg.BrokerId * groups / brokerNum
	end := (n.cfg.BrokerId + 1) * groups / brokerNum
	owned := make([]types.GroupIndex, 0, end-start)
	for g := start; g < end; g++ {
		owned = append(owned, types.GroupIndex(g))
	}
	return owned
}

// runMiner repeatedly assembles a block template for one intra-chain
// (from, from), seals it, and submits it to the orchestrator — the
// same template-build/seal/submit cycle the teacher's runMiner uses
// against its single chain, generalized to a chosen origin group's own
// chain.
func (n *Node) runMiner(from types.GroupIndex, coinbaseAddr types.Address) {
	defer n.wg.Done()
	logger := klog.Chain.With().Int("group", int(from)).Logger()
	ci := types.ChainIndex{From: from, To: from}
	groups := n.genesis.Protocol.Groups

	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		deps, err := n.flow.CalBestDeps(from)
		if err != nil {
			logger.Error().Err(err).Msg("compute best deps")
			time.Sleep(time.Second)
			continue
		}

		parentHash := deps[groups-1+int(from)]
		parentHeader, err := n.store.GetHeader(parentHash)
		if err != nil {
			logger.Error().Err(err).Msg("load parent header")
			time.Sleep(time.Second)
			continue
		}
		height, err := n.flow.BlockHeight(ci, parentHash)
		if err != nil {
			logger.Error().Err(err).Msg("compute parent height")
			time.Sleep(time.Second)
			continue
		}

		candidates := n.pool.SelectForBlock(config.MaxBlockTxs - 1)
		reward := n.genesis.Protocol.Consensus.BaseReward(height + 1)

		b := tx.NewBuilder()
		b.AddOutput(new(big.Int).SetUint64(reward), types.P2PKH(coinbaseAddr))
		coinbase := b.Build()
		coinbase.Unsigned.Inputs = []tx.TxInput{{OutputRef: types.TxOutputRef{}}}
		coinbase.Unsigned.GasAmount = 0
		coinbase.Unsigned.GasPrice = new(big.Int)

		header := &block.Header{Deps: deps, Timestamp: uint64(time.Now().UnixMilli()), Target: parentHeader.Target}
		blk := block.NewBlock(header, candidates, coinbase)
		header.TxsHash = blk.TxsHash()

		sealCtx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
		err = n.engine.Seal(sealCtx, header, groups, ci)
		cancel()
		if err != nil {
			continue // timed out, or best deps moved on; retry with a fresh template.
		}

		if err := n.orch.AddBlock(n.ctx, blk, orchestrator.OriginMiner); err != nil {
			logger.Debug().Err(err).Msg("mined block rejected")
		}
	}
}

// runEvictionLoop periodically drops expired and over-capacity mempool
// entries.
func (n *Node) runEvictionLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			n.pool.EvictExpired(now)
			n.pool.EvictOverCapacity()
		}
	}
}

// Orchestrator exposes the node's single write door, for a transport
// layer (p2p, a CLI's local-submit path) to hand blocks and
// transactions through.
func (n *Node) Orchestrator() *orchestrator.Orchestrator { return n.orch }

// Tip returns the current (hash, height) of the given chain.
func (n *Node) Tip(ci types.ChainIndex) (types.BlockHash, uint64, error) {
	return n.flow.Tip(ci)
}

// Genesis returns the network genesis configuration this node was
// bootstrapped from.
func (n *Node) Genesis() *config.Genesis { return n.genesis }
