// Package p2p defines the typed inbound/outbound messages the core
// exchanges with the outside world. Peer discovery, gossip transport,
// stream handling, and peer banning are external collaborators per the
// specification's scope boundary (spec.md §1: "delivers blocks/tx to
// the core via a typed inbound interface") and are not implemented
// here — this package only fixes the wire shapes internal/orchestrator
// accepts and produces, generalizing the teacher's libp2p-bound
// protocol.go/heightreq.go into transport-agnostic structs.
package p2p

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// MessageType identifies the kind of payload a Message carries.
type MessageType uint8

const (
	MsgTx             MessageType = iota + 1 // a single broadcast transaction
	MsgBlock                                 // a single broadcast block
	MsgLocatorRequest                        // "send me headers after one of these locators"
	MsgHeaderResponse                        // headers answering a locator request
	MsgTipRequest                            // "what's your tip on this chain"
	MsgTipResponse                           // a chain's current tip status
	MsgInventoryRequest
	MsgInventoryResponse
)

// Message is the outermost envelope exchanged with the transport layer:
// Type selects which of the payload structs below Payload decodes as.
type Message struct {
	Type    MessageType `json:"type"`
	Payload []byte      `json:"payload"`
}

// TxMessage announces a single transaction for mempool admission.
type TxMessage struct {
	Tx *tx.Transaction `json:"tx"`
}

// BlockMessage announces a single mined block for orchestrator
// admission.
type BlockMessage struct {
	Block *block.Block `json:"block"`
}

// LocatorRequest asks a peer for the headers that follow the first of
// Locators (in order) it recognizes on Chain — the same
// exponentially-spaced locator list internal/blockflow.HistoryLocators
// produces.
type LocatorRequest struct {
	Chain    types.ChainIndex  `json:"chain"`
	Locators []types.BlockHash `json:"locators"`
	MaxCount int               `json:"max_count"`
}

// HeaderResponse answers a LocatorRequest with the headers found after
// the matched locator, oldest first.
type HeaderResponse struct {
	Chain   types.ChainIndex `json:"chain"`
	Headers []*block.Header  `json:"headers"`
}

// TipRequest asks a peer for its current tip on a chain.
type TipRequest struct {
	Chain types.ChainIndex `json:"chain"`
}

// TipResponse reports a chain's current tip.
type TipResponse struct {
	Chain   types.ChainIndex `json:"chain"`
	Height  uint64           `json:"height"`
	TipHash types.BlockHash  `json:"tip_hash"`
}

// InventoryRequest asks a peer which of a candidate set of block
// hashes it already has, used to avoid re-announcing known blocks.
type InventoryRequest struct {
	Chain  types.ChainIndex  `json:"chain"`
	Hashes []types.BlockHash `json:"hashes"`
}

// InventoryResponse reports which of the requested hashes the
// responder is missing (and would like sent).
type InventoryResponse struct {
	Chain   types.ChainIndex  `json:"chain"`
	Missing []types.BlockHash `json:"missing"`
}
