// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date       time.Time               `json:"date" yaml:"date"`
	ChainID    uint64                  `json:"chain_id" yaml:"chain_id" validate:"required"`         // The chain id represents an unique id for this running instance.
	EthChainID uint64                  `json:"eth_chain_id" yaml:"eth_chain_id" validate:"required"` // Chain id ethereum transactions must be signed for.
	Limits     weight.Limits           `json:"limits" yaml:"limits"`                                 // Weight capacity of a block.
	BaseFee    Fee                     `json:"base_fee" yaml:"base_fee"`                             // Initial fee controller state.
	Sudo       string                  `json:"sudo" yaml:"sudo" validate:"required"`                 // Account allowed to dispatch root calls.
	Balances   map[string]*uint256.Int `json:"balances" yaml:"balances" validate:"dive,required"`
}

// Fee is the initial state of the fee controller. Every value must be
// present in the file, an explicit zero is a valid choice.
type Fee struct {
	BaseFee    *uint256.Int `json:"base_fee" yaml:"base_fee" validate:"required"`
	Elasticity *uint32      `json:"elasticity" yaml:"elasticity" validate:"required,max=1000000"` // Parts per million.
	IsActive   *bool        `json:"is_active" yaml:"is_active" validate:"required"`
	Threshold  *Threshold   `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Threshold optionally overrides the utilization band, in parts per million.
type Threshold struct {
	Lower uint32 `json:"lower" yaml:"lower"`
	Ideal uint32 `json:"ideal" yaml:"ideal" validate:"gtfield=Lower"`
	Upper uint32 `json:"upper" yaml:"upper" validate:"gtfield=Ideal,max=1000000"`
}

// =============================================================================

// Load opens and consumes the genesis file. Files with a .yaml or .yml
// extension are read as YAML, anything else as JSON.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &genesis)
	default:
		err = json.Unmarshal(content, &genesis)
	}
	if err != nil {
		return Genesis{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are complete and consistent.
func (g Genesis) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(g); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	if g.Limits.MaxBlock == 0 {
		return errors.New("genesis: limits.max_block must be greater than zero")
	}

	if _, err := ParseAccount(g.Sudo); err != nil {
		return fmt.Errorf("genesis: sudo: %w", err)
	}

	for account := range g.Balances {
		if _, err := ParseAccount(account); err != nil {
			return fmt.Errorf("genesis: balances: %s: %w", account, err)
		}
	}

	return nil
}

// SudoID returns the native account of the sudo key.
func (g Genesis) SudoID() identity.NativeID {
	id, _ := ParseAccount(g.Sudo)
	return id
}

// FeeState returns the fee controller state the chain starts with.
func (g Genesis) FeeState() basefee.State {
	var state basefee.State
	if g.BaseFee.BaseFee != nil {
		state.BaseFee = g.BaseFee.BaseFee.Clone()
	}
	if g.BaseFee.Elasticity != nil {
		state.Elasticity = basefee.PermillFromParts(*g.BaseFee.Elasticity)
	}
	if g.BaseFee.IsActive != nil {
		state.IsActive = *g.BaseFee.IsActive
	}
	return state
}

// FeeThreshold returns the utilization band, the zero value when the file
// doesn't override it.
func (g Genesis) FeeThreshold() basefee.Threshold {
	if g.BaseFee.Threshold == nil {
		return basefee.Threshold{}
	}

	return basefee.Threshold{
		Lower: basefee.Permill(g.BaseFee.Threshold.Lower),
		Ideal: basefee.Permill(g.BaseFee.Threshold.Ideal),
		Upper: basefee.Permill(g.BaseFee.Threshold.Upper),
	}
}

// Hash returns the value every native signature commits to, tying
// extrinsics to this chain.
func (g Genesis) Hash() common.Hash {
	data, err := json.Marshal(g)
	if err != nil {
		return common.Hash{}
	}

	return crypto.Keccak256Hash(data)
}

// ParseAccount converts an account string from the genesis file into its
// native id. Ethereum addresses are mapped into the native space.
func ParseAccount(s string) (identity.NativeID, error) {
	if common.IsHexAddress(s) && len(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")) == 2*common.AddressLength {
		return identity.FromEth(common.HexToAddress(s)).Native(), nil
	}

	return identity.ParseNativeID(s)
}
