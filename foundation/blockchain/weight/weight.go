// Package weight provides the accounting units used to charge extrinsics
// against the capacity of a block.
package weight

import "fmt"

// Weight is an abstract measure of the computational cost of a dispatch.
type Weight uint64

// SaturatingAdd adds the weights, stopping at the maximum value.
func (w Weight) SaturatingAdd(other Weight) Weight {
	sum := w + other
	if sum < w {
		return ^Weight(0)
	}
	return sum
}

// SaturatingSub subtracts the weights, stopping at zero.
func (w Weight) SaturatingSub(other Weight) Weight {
	if other > w {
		return 0
	}
	return w - other
}

// =============================================================================

// Class identifies the kind of dispatch for block capacity purposes.
type Class uint8

// Set of dispatch classes.
const (
	Normal Class = iota
	Operational
	Mandatory
)

// String implements the fmt.Stringer interface.
func (c Class) String() string {
	switch c {
	case Normal:
		return "normal"
	case Operational:
		return "operational"
	case Mandatory:
		return "mandatory"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Pays identifies whether the dispatch pays a fee.
type Pays uint8

// Set of fee liabilities.
const (
	PaysYes Pays = iota
	PaysNo
)

// =============================================================================

// DispatchInfo is the declared cost of a call, known before dispatch.
type DispatchInfo struct {
	Weight  Weight
	Class   Class
	PaysFee Pays
}

// PostDispatchInfo is what a call reports after it dispatched.
type PostDispatchInfo struct {
	ActualWeight *Weight
	PaysFee      Pays
}

// CalcActualWeight returns the weight actually consumed. A call that
// reports nothing consumed its declared weight, and the reported value can
// never exceed the declared weight.
func (p PostDispatchInfo) CalcActualWeight(info DispatchInfo) Weight {
	if p.ActualWeight == nil {
		return info.Weight
	}
	return min(*p.ActualWeight, info.Weight)
}

// CalcUnspent returns the declared weight that wasn't used.
func (p PostDispatchInfo) CalcUnspent(info DispatchInfo) Weight {
	return info.Weight.SaturatingSub(p.CalcActualWeight(info))
}

// Actual is a helper to build a post dispatch info with a known weight.
func Actual(w Weight) PostDispatchInfo {
	return PostDispatchInfo{ActualWeight: &w}
}
