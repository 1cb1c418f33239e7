// blockflow-cli is a local inspection tool for a BlockFlow data
// directory: it reads genesis configuration, chain tips, and
// individual blocks/transactions directly off disk. It does not speak
// to a running node over the network — a wire RPC surface is an
// external collaborator this engine only defines typed message shapes
// for (internal/p2p), not something this repository serves.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstore"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	dataDir := config.DefaultDataDir()
	network := "mainnet"

	// Scan for --datadir and --network before the subcommand, the same
	// global-flag-then-dispatch shape a network-talking CLI would use.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	netType := config.Mainnet
	if network == "testnet" {
		netType = config.Testnet
	}
	if netType == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default(netType)
	cfg.DataDir = dataDir

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "genesis":
		cmdGenesis(netType)
	case "status":
		cmdStatus(cfg, netType)
	case "decode-block":
		cmdDecodeBlock(cmdArgs, netType)
	case "decode-tx":
		cmdDecodeTx(cmdArgs)
	case "address":
		cmdAddress(cmdArgs, netType)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: blockflow-cli [global flags] <command> [args]

Global flags:
  --datadir <path>    Data directory (default: %s)
  --network <net>     mainnet (default) or testnet

Commands:
  genesis                    Print the network's genesis configuration
  status                     Show every chain's tip height and hash
  decode-block <file>        Pretty-print a JSON-encoded block file
  decode-tx <file>           Pretty-print a JSON-encoded transaction file
  address <pubkey-hex>       Derive the P2PKH address for a public key
`, config.DefaultDataDir())
}

func cmdGenesis(network config.NetworkType) {
	genesis := config.GenesisFor(network)
	printJSON(genesis)
}

func cmdStatus(cfg *config.Config, network config.NetworkType) {
	genesis := config.GenesisFor(network)

	db, err := storage.NewBadger(cfg.ChainDataDir())
	if err != nil {
		fatalf("open storage at %s: %v", cfg.ChainDataDir(), err)
	}
	defer db.Close()

	store := chainstore.New(storage.NewColumns(db))
	fmt.Printf("chain_id: %s\nnetwork:  %s\ngroups:   %d\n\n", genesis.ChainID, network, genesis.Protocol.Groups)

	for from := 0; from < genesis.Protocol.Groups; from++ {
		for to := 0; to < genesis.Protocol.Groups; to++ {
			ci := types.ChainIndex{From: types.GroupIndex(from), To: types.GroupIndex(to)}
			hash, height, err := store.GetTip(ci)
			if err != nil {
				fmt.Printf("(%d,%d): error: %v\n", from, to, err)
				continue
			}
			if hash.IsZero() {
				fmt.Printf("(%d,%d): empty\n", from, to)
				continue
			}
			fmt.Printf("(%d,%d): height=%d tip=%s\n", from, to, height, hash)
		}
	}
}

func cmdDecodeBlock(args []string, network config.NetworkType) {
	if len(args) < 1 {
		fatalf("usage: blockflow-cli decode-block <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fatalf("read %s: %v", args[0], err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		fatalf("decode block: %v", err)
	}
	groups := config.GenesisFor(network).Protocol.Groups
	fmt.Printf("hash:   %s\nchain:  %s\ntxs:    %d\n\n", blk.Hash(), blk.Header.ChainIndex(groups), len(blk.Transactions))
	printJSON(&blk)
}

func cmdDecodeTx(args []string) {
	if len(args) < 1 {
		fatalf("usage: blockflow-cli decode-tx <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fatalf("read %s: %v", args[0], err)
	}
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		fatalf("decode tx: %v", err)
	}
	fmt.Printf("id:        %s\ncoinbase:  %v\ninputs:    %d\noutputs:   %d\n\n",
		t.TxId(), t.IsCoinbase(), len(t.AllInputRefs()), len(t.AllOutputs()))
	printJSON(&t)
}

func cmdAddress(args []string, network config.NetworkType) {
	if len(args) < 1 {
		fatalf("usage: blockflow-cli address <pubkey-hex>")
	}
	pubKey, err := hex.DecodeString(args[0])
	if err != nil {
		fatalf("invalid pubkey hex: %v", err)
	}
	addr := crypto.AddressFromPubKey(pubKey)
	genesis := config.GenesisFor(network)
	group := types.P2PKH(addr).GroupIndexOf(crypto.Hash, genesis.Protocol.Groups)
	fmt.Printf("address: %s\ngroup:   %d\n", addr, group)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("encode: %v", err)
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
