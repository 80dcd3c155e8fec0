// Package basefee maintains the per block fee unit and adjusts it at the end
// of every block based on how full the block was.
package basefee

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// DefaultElasticity is the maximum adjustment applied to the fee in a single
// block, 12.5%.
const DefaultElasticity Permill = 125_000

// Max is the largest fee the controller will ever hold.
var Max = new(uint256.Int).SetAllOne()

// EventHandler defines a function that is called when events occur in the
// processing of the fee.
type EventHandler func(v string, args ...any)

// =============================================================================

// Threshold describes the utilization band of a block. Utilization below
// Lower or above Upper is clamped, Ideal is where the fee stays the same.
type Threshold struct {
	Lower Permill `json:"lower" yaml:"lower"`
	Ideal Permill `json:"ideal" yaml:"ideal"`
	Upper Permill `json:"upper" yaml:"upper"`
}

// DefaultThreshold returns the band of 0%, 50% and 100%.
func DefaultThreshold() Threshold {
	return Threshold{
		Lower: 0,
		Ideal: PermillFromPercent(50),
		Upper: PermillOne,
	}
}

// Validate checks the band is well formed.
func (t Threshold) Validate() error {
	if t.Upper > PermillOne {
		return fmt.Errorf("upper threshold %s above 100%%", t.Upper)
	}
	if !(t.Lower < t.Ideal && t.Ideal < t.Upper) {
		return fmt.Errorf("threshold must satisfy lower < ideal < upper, got %s, %s, %s", t.Lower, t.Ideal, t.Upper)
	}
	return nil
}

// =============================================================================

// State is the persisted value of the controller.
type State struct {
	BaseFee    *uint256.Int `json:"base_fee"`
	Elasticity Permill      `json:"elasticity"`
	IsActive   bool         `json:"is_active"`
}

// Copy returns a deep copy of the state.
func (s State) Copy() State {
	cpy := s
	if s.BaseFee != nil {
		cpy.BaseFee = s.BaseFee.Clone()
	}
	return cpy
}

// Config represents the configuration required to construct a controller.
type Config struct {
	Threshold Threshold // Zero value means DefaultThreshold.
	Metrics   *Metrics
	EvHandler EventHandler
}

// Controller owns the fee state. The block execution context is the only
// writer; reads are safe from any goroutine.
type Controller struct {
	mu        sync.RWMutex
	threshold Threshold
	state     State
	metrics   *Metrics
	evHandler EventHandler
}

// New constructs a controller from the genesis or persisted state. Every
// field of the state is required.
func New(state State, cfg Config) (*Controller, error) {
	if state.BaseFee == nil {
		return nil, errors.New("base fee is required")
	}

	if state.Elasticity > PermillOne {
		return nil, fmt.Errorf("elasticity %d above 100%%", state.Elasticity)
	}

	if cfg.Threshold == (Threshold{}) {
		cfg.Threshold = DefaultThreshold()
	}

	if err := cfg.Threshold.Validate(); err != nil {
		return nil, err
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	c := Controller{
		threshold: cfg.Threshold,
		state:     state.Copy(),
		metrics:   cfg.Metrics,
		evHandler: ev,
	}

	c.metrics.observe(c.state.BaseFee)

	return &c, nil
}

// BaseFee returns a copy of the current fee.
func (c *Controller) BaseFee() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.BaseFee.Clone()
}

// Elasticity returns the current elasticity.
func (c *Controller) Elasticity() Permill {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.Elasticity
}

// IsActive returns whether the fee is adjusted at the end of a block.
func (c *Controller) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.IsActive
}

// Threshold returns the configured utilization band.
func (c *Controller) Threshold() Threshold {
	return c.threshold
}

// State returns a copy of the full state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.Copy()
}

// Restore replaces the state, used to roll back a discarded block.
func (c *Controller) Restore(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state.Copy()
	c.metrics.observe(c.state.BaseFee)
}

// OnFinalize adjusts the fee using the weight consumed by the block and the
// capacity of the block. It runs exactly once per block.
func (c *Controller) OnFinalize(consumed, capacity uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsActive {
		c.evHandler("basefee: OnFinalize: inactive: fee[%s]", c.state.BaseFee)
		return
	}

	prev := c.state.BaseFee
	next, saturated := Next(prev, c.state.Elasticity, c.threshold, consumed, capacity)
	c.state.BaseFee = next

	c.evHandler("basefee: OnFinalize: consumed[%d] capacity[%d]: fee[%s] -> [%s]", consumed, capacity, prev, next)
	if saturated {
		c.evHandler("basefee: OnFinalize: SATURATED: fee[%s]", next)
	}

	c.metrics.adjusted(prev, next)
}

// SetBaseFee overwrites the fee.
func (c *Controller) SetBaseFee(fee *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.BaseFee = fee.Clone()
	c.evHandler("basefee: SetBaseFee: fee[%s]", fee)
	c.metrics.observe(c.state.BaseFee)
}

// SetIsActive turns the per block adjustment on or off.
func (c *Controller) SetIsActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.IsActive = active
	c.evHandler("basefee: SetIsActive: active[%t]", active)
}

// SetElasticity overwrites the elasticity.
func (c *Controller) SetElasticity(e Permill) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Elasticity = min(e, PermillOne)
	c.evHandler("basefee: SetElasticity: elasticity[%s]", c.state.Elasticity)
}

// =============================================================================

// Next computes the fee for the following block. The intermediate product
// is computed at 512 bits and every step saturates, so no input can make the
// result wrap. The second return value reports an increase that was capped
// at Max.
func Next(fee *uint256.Int, elasticity Permill, th Threshold, consumed, capacity uint64) (*uint256.Int, bool) {
	used := PermillFromRational(consumed, capacity).Clamp(th.Lower, th.Upper)

	usage := rescale(used, th.Lower, th.Upper)
	target := rescale(th.Ideal.Clamp(th.Lower, th.Upper), th.Lower, th.Upper)

	if usage == target || target == 0 {
		return fee.Clone(), false
	}

	var deviation uint64
	switch {
	case usage > target:
		deviation = uint64(usage - target)
	default:
		deviation = uint64(target - usage)
	}

	num := uint256.NewInt(uint64(elasticity) * deviation)
	den := uint256.NewInt(uint64(target) * PermillOne)

	delta, overflow := new(uint256.Int).MulDivOverflow(fee, num, den)
	if overflow {
		delta = Max.Clone()
	}

	if usage > target {
		next, overflow := new(uint256.Int).AddOverflow(fee, delta)
		if overflow {
			return Max.Clone(), true
		}
		return next, false
	}

	if delta.Gt(fee) {
		return new(uint256.Int), false
	}
	return new(uint256.Int).Sub(fee, delta), false
}
