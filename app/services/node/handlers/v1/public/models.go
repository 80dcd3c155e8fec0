package public

import (
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type account struct {
	Account identity.NativeID `json:"account"`
	Eth     common.Address    `json:"eth"`
	Name    string            `json:"name"`
	Nonce   uint64            `json:"nonce"`
	Balance *uint256.Int      `json:"balance"`
}

type actInfo struct {
	LatestBlock common.Hash `json:"latest_block"`
	Uncommitted int         `json:"uncommitted"`
	Accounts    []account   `json:"accounts"`
}

type submitted struct {
	Status   string      `json:"status"`
	Hash     common.Hash `json:"hash"`
	Kind     string      `json:"kind"`
	Priority uint64      `json:"priority"`
}

type block struct {
	Hash        common.Hash          `json:"hash"`
	Header      database.BlockHeader `json:"header"`
	Beneficiary string               `json:"beneficiary_name"`
	Extrinsics  int                  `json:"extrinsics"`
}

type baseFee struct {
	BaseFee    *uint256.Int `json:"base_fee"`
	Elasticity string       `json:"elasticity"`
	IsActive   bool         `json:"is_active"`
}
