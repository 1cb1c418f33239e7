package storage

// Column family prefixes. Every persistent component gets its own
// PrefixDB over one shared underlying DB, the same way the teacher
// isolated sub-chain data with a single prefix byte generalized here
// to one byte per logical column.
var (
	ColumnBlocks    = []byte{0x01} // block body bytes, keyed by block hash
	ColumnHeaders   = []byte{0x02} // header bytes, keyed by block hash
	ColumnTxs       = []byte{0x03} // tx index: txId -> containing block hash
	ColumnHeights   = []byte{0x04} // per-chain height -> block hash index
	ColumnCanonical = []byte{0x05} // per-chain canonical chain marker
	ColumnTrie      = []byte{0x06} // world-state trie nodes, keyed by node hash
	ColumnMeta      = []byte{0x07} // tips, best-deps cache, misc singleton keys
	ColumnOutputs   = []byte{0x08} // live (unspent) asset/contract outputs, keyed by TxOutputRef
)

// Columns opens one PrefixDB per logical column over a shared DB.
type Columns struct {
	Blocks    *PrefixDB
	Headers   *PrefixDB
	Txs       *PrefixDB
	Heights   *PrefixDB
	Canonical *PrefixDB
	Trie      *PrefixDB
	Meta      *PrefixDB
	Outputs   *PrefixDB
}

// NewColumns wraps db with the standard set of column families.
func NewColumns(db DB) *Columns {
	return &Columns{
		Blocks:    NewPrefixDB(db, ColumnBlocks),
		Headers:   NewPrefixDB(db, ColumnHeaders),
		Txs:       NewPrefixDB(db, ColumnTxs),
		Heights:   NewPrefixDB(db, ColumnHeights),
		Canonical: NewPrefixDB(db, ColumnCanonical),
		Trie:      NewPrefixDB(db, ColumnTrie),
		Meta:      NewPrefixDB(db, ColumnMeta),
		Outputs:   NewPrefixDB(db, ColumnOutputs),
	}
}
