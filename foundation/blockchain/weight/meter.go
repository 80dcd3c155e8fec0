package weight

import (
	"errors"
	"fmt"
)

// Set of errors returned when a dispatch doesn't fit.
var (
	ErrExtrinsicTooHeavy = errors.New("extrinsic exceeds the per extrinsic weight limit")
	ErrBlockFull         = errors.New("extrinsic exceeds the remaining block weight")
)

// Limits describes the weight capacity of a block.
type Limits struct {
	MaxBlock      Weight `json:"max_block" yaml:"max_block"`           // Total capacity, the denominator of block utilization.
	NormalPercent uint8  `json:"normal_percent" yaml:"normal_percent"` // Share of MaxBlock usable by Normal dispatches.
	MaxExtrinsic  Weight `json:"max_extrinsic" yaml:"max_extrinsic"`   // Cap on a single non mandatory extrinsic, 0 means MaxBlock.
	BaseExtrinsic Weight `json:"base_extrinsic" yaml:"base_extrinsic"` // Overhead charged to every extrinsic.
	PerByte       Weight `json:"per_byte" yaml:"per_byte"`             // Weight charged for each encoded byte.
}

// ClassMax returns the total weight a class may consume in one block.
func (l Limits) ClassMax(c Class) Weight {
	switch c {
	case Normal:
		pct := Weight(min(l.NormalPercent, 100))
		return l.MaxBlock / 100 * pct
	case Operational:
		return l.MaxBlock
	}
	return ^Weight(0)
}

// ExtrinsicWeight returns the full weight charged for an extrinsic of the
// given encoded length.
func (l Limits) ExtrinsicWeight(info DispatchInfo, length int) Weight {
	lw := l.PerByte * Weight(length)
	if length != 0 && lw/Weight(length) != l.PerByte {
		lw = ^Weight(0)
	}
	return info.Weight.SaturatingAdd(l.BaseExtrinsic).SaturatingAdd(lw)
}

// =============================================================================

// Meter accumulates the weight consumed by a block per class. It's owned by
// the block execution context and must not be shared across goroutines.
type Meter struct {
	limits   Limits
	consumed [3]Weight
}

// NewMeter constructs a meter for the given limits.
func NewMeter(limits Limits) *Meter {
	return &Meter{limits: limits}
}

// Limits returns the limits the meter enforces.
func (m *Meter) Limits() Limits {
	return m.limits
}

// Check reports whether an extrinsic would fit without registering it.
func (m *Meter) Check(info DispatchInfo, length int) error {
	if info.Class == Mandatory {
		return nil
	}

	w := m.limits.ExtrinsicWeight(info, length)

	maxExtrinsic := m.limits.MaxExtrinsic
	if maxExtrinsic == 0 {
		maxExtrinsic = m.limits.MaxBlock
	}
	if w > maxExtrinsic {
		return fmt.Errorf("%w: weight %d, limit %d", ErrExtrinsicTooHeavy, w, maxExtrinsic)
	}

	if m.consumed[info.Class].SaturatingAdd(w) > m.limits.ClassMax(info.Class) {
		return fmt.Errorf("%w: class %s, consumed %d, weight %d", ErrBlockFull, info.Class, m.consumed[info.Class], w)
	}

	if m.Total().SaturatingAdd(w) > m.limits.MaxBlock {
		return fmt.Errorf("%w: consumed %d, weight %d", ErrBlockFull, m.Total(), w)
	}

	return nil
}

// Register checks the extrinsic fits and adds its weight to the block.
func (m *Meter) Register(info DispatchInfo, length int) error {
	if err := m.Check(info, length); err != nil {
		return err
	}

	m.consumed[info.Class] = m.consumed[info.Class].SaturatingAdd(m.limits.ExtrinsicWeight(info, length))
	return nil
}

// RegisterExtraUnchecked adds weight to the class without any checks.
func (m *Meter) RegisterExtraUnchecked(w Weight, c Class) {
	m.consumed[c] = m.consumed[c].SaturatingAdd(w)
}

// Refund gives back weight that was registered but not used.
func (m *Meter) Refund(w Weight, c Class) {
	m.consumed[c] = m.consumed[c].SaturatingSub(w)
}

// Consumed returns the weight consumed by a single class.
func (m *Meter) Consumed(c Class) Weight {
	return m.consumed[c]
}

// Total returns the weight consumed by all classes.
func (m *Meter) Total() Weight {
	var total Weight
	for _, w := range m.consumed {
		total = total.SaturatingAdd(w)
	}
	return total
}

// Reset clears the meter for the next block.
func (m *Meter) Reset() {
	m.consumed = [3]Weight{}
}

// =============================================================================

// WeightPerGas is the default number of weight units for one unit of gas.
const WeightPerGas = 20_000

// GasMapping converts between gas and weight.
type GasMapping interface {
	GasToWeight(gas uint64) Weight
	WeightToGas(w Weight) uint64
}

// FixedGasMapping converts with a constant ratio.
type FixedGasMapping struct {
	PerGas uint64
}

// GasToWeight implements the GasMapping interface.
func (f FixedGasMapping) GasToWeight(gas uint64) Weight {
	if gas != 0 && (gas*f.PerGas)/gas != f.PerGas {
		return ^Weight(0)
	}
	return Weight(gas * f.PerGas)
}

// WeightToGas implements the GasMapping interface.
func (f FixedGasMapping) WeightToGas(w Weight) uint64 {
	if f.PerGas == 0 {
		return 0
	}
	return uint64(w) / f.PerGas
}
