package database

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
)

// ErrChainForked is returned from ValidateBlock if another node's chain
// is two or more blocks ahead of ours.
var ErrChainForked = errors.New("blockchain forked, start resync")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number         uint64            `json:"number"`          // Block number in the chain.
	PrevBlockHash  common.Hash       `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp      uint64            `json:"timestamp"`       // Unix milliseconds set by the timestamp inherent.
	BeneficiaryID  identity.NativeID `json:"beneficiary"`     // The account who is receiving tips.
	ExtrinsicsRoot common.Hash       `json:"extrinsics_root"` // Trie root of the encoded extrinsics in this block.
	BaseFee        *uint256.Int      `json:"base_fee"`        // Fee per gas in force while the block executed.
	WeightUsed     uint64            `json:"weight_used"`     // Total weight the block consumed.
}

// Block represents a group of extrinsics batched together.
type Block struct {
	Header     BlockHeader
	Extrinsics []hexutil.Bytes
}

// NewBlock constructs a block over the encoded extrinsics.
func NewBlock(header BlockHeader, extrinsics []hexutil.Bytes) Block {
	header.ExtrinsicsRoot = ExtrinsicsRoot(extrinsics)

	return Block{
		Header:     header,
		Extrinsics: extrinsics,
	}
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() common.Hash {
	if b.Header.Number == 0 {
		return common.Hash{}
	}

	// Hashing the block header and not the whole block so the blockchain can
	// be cryptographically checked by only needing block headers. The
	// extrinsics are covered by the root.

	h := b.Header
	if h.BaseFee == nil {
		h.BaseFee = new(uint256.Int)
	}

	data, err := rlp.EncodeToBytes(&h)
	if err != nil {
		return common.Hash{}
	}

	return crypto.Keccak256Hash(data)
}

// ValidateBlock takes a block and validates it to be included into the blockchain.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: chain is not forked", b.Header.Number)

	// The node who sent this block has a chain that is two or more blocks ahead
	// of ours. This means there has been a fork and we are on the wrong side.
	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number >= (nextNumber + 2) {
		return ErrChainForked
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

		if b.Header.TimeStamp <= previousBlock.Header.TimeStamp {
			return fmt.Errorf("block timestamp is before parent block, parent %d, block %d", previousBlock.Header.TimeStamp, b.Header.TimeStamp)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: extrinsics root does match extrinsics", b.Header.Number)

	if root := ExtrinsicsRoot(b.Extrinsics); b.Header.ExtrinsicsRoot != root {
		return fmt.Errorf("extrinsics root does not match extrinsics, got %s, exp %s", root, b.Header.ExtrinsicsRoot)
	}

	return nil
}

// =============================================================================

// ExtrinsicsRoot returns the trie root over the encoded extrinsics, keyed by
// their position in the block.
func ExtrinsicsRoot(extrinsics []hexutil.Bytes) common.Hash {
	return types.DeriveSha(encodedList(extrinsics), trie.NewStackTrie(nil))
}

// encodedList adapts the extrinsics to the derivable list the trie
// hasher walks.
type encodedList []hexutil.Bytes

// Len implements the types.DerivableList interface.
func (l encodedList) Len() int {
	return len(l)
}

// EncodeIndex implements the types.DerivableList interface.
func (l encodedList) EncodeIndex(i int, w *bytes.Buffer) {
	w.Write(l[i])
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash       common.Hash     `json:"hash"`
	Header     BlockHeader     `json:"block"`
	Extrinsics []hexutil.Bytes `json:"extrinsics"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:       block.Hash(),
		Header:     block.Header,
		Extrinsics: block.Extrinsics,
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) (Block, error) {
	block := Block{
		Header:     blockData.Header,
		Extrinsics: blockData.Extrinsics,
	}

	if blockData.Header.Number > 0 && block.Hash() != blockData.Hash {
		return Block{}, fmt.Errorf("block %d hash mismatch, got %s, exp %s", blockData.Header.Number, block.Hash(), blockData.Hash)
	}

	return block, nil
}
