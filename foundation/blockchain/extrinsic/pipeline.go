// Package extrinsic implements the validate and apply rules for checked
// extrinsics across the four formats: bare, signed, general and self
// contained.
package extrinsic

import (
	"errors"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
)

// EventHandler defines a function that is called when events occur in the
// processing of extrinsics.
type EventHandler func(v string, args ...any)

// Config represents the collaborators required by the pipeline.
type Config struct {
	Inherents InherentValidator
	Bare      BareExtension
	Mapper    identity.Mapper
	Metrics   *Metrics
	EvHandler EventHandler
}

// Pipeline validates and applies checked extrinsics. Validate has no shared
// mutable state and may be called concurrently. Apply must only be called
// by the block execution context, one extrinsic at a time.
type Pipeline[S any] struct {
	inherents InherentValidator
	bare      BareExtension
	mapper    identity.Mapper
	metrics   *Metrics
	evHandler EventHandler
}

// New constructs a pipeline.
func New[S any](cfg Config) (*Pipeline[S], error) {
	if cfg.Inherents == nil {
		return nil, errors.New("inherent validator is required")
	}
	if cfg.Bare == nil {
		return nil, errors.New("bare extension is required")
	}
	if cfg.Mapper.Forward == nil || cfg.Mapper.Backward == nil {
		cfg.Mapper = identity.Default
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	p := Pipeline[S]{
		inherents: cfg.Inherents,
		bare:      cfg.Bare,
		mapper:    cfg.Mapper,
		metrics:   cfg.Metrics,
		evHandler: ev,
	}

	return &p, nil
}

// Validate decides whether the extrinsic may enter the pool or a block.
func (p *Pipeline[S]) Validate(source TransactionSource, xt Checked[S], info weight.DispatchInfo, length int) (ValidTransaction, error) {
	v, err := p.validate(source, xt, info, length)
	p.metrics.record("validate", xt.Format.Kind(), err)

	if err != nil {
		p.evHandler("extrinsic: Validate: kind[%s] source[%s]: ERROR: %s", xt.Format.Kind(), source, err)
		return ValidTransaction{}, err
	}

	return v, nil
}

func (p *Pipeline[S]) validate(source TransactionSource, xt Checked[S], info weight.DispatchInfo, length int) (ValidTransaction, error) {
	switch xt.Format.kind {
	case KindBare:
		inherent, err := p.inherents.ValidateUnsigned(source, xt.Function)
		if err != nil {
			return ValidTransaction{}, toValidity(err)
		}

		legacy, err := p.bare.BareValidate(xt.Function, info, length)
		if err != nil {
			return ValidTransaction{}, toValidity(err)
		}

		return legacy.CombineWith(inherent), nil

	case KindSigned:
		origin := SignedOrigin(p.mapper.FromNative(xt.Format.signer))
		v, err := xt.Format.ext.ValidateOnly(origin, xt.Function, info, length)
		return v, toValidity(err)

	case KindGeneral:
		v, err := xt.Format.ext.ValidateOnly(NoneOrigin(), xt.Function, info, length)
		return v, toValidity(err)

	case KindSelfContained:
		v, err := xt.Function.ValidateSelfContained(xt.Format.info, info, length)
		if errors.Is(err, ErrNotSelfContained) {
			return ValidTransaction{}, ErrBadProof.WithCause(err)
		}
		return v, toValidity(err)
	}

	return ValidTransaction{}, ErrCall.WithCause(ErrUnknownFormat)
}

// Apply executes the extrinsic against the block. The returned error means
// the extrinsic can't be part of the block; when it's a *FatalError the
// block itself is invalid. A failed dispatch is not an error here, it's
// reported in the Outcome.
func (p *Pipeline[S]) Apply(xt Checked[S], info weight.DispatchInfo, length int) (Outcome, error) {
	out, err := p.apply(xt, info, length)
	p.metrics.record("apply", xt.Format.Kind(), err)

	switch {
	case err != nil:
		p.evHandler("extrinsic: Apply: kind[%s]: ERROR: %s", xt.Format.Kind(), err)
	case out.Err != nil:
		p.evHandler("extrinsic: Apply: kind[%s]: dispatch failed: %s", xt.Format.Kind(), out.Err)
	}

	return out, err
}

func (p *Pipeline[S]) apply(xt Checked[S], info weight.DispatchInfo, length int) (Outcome, error) {
	switch xt.Format.kind {
	case KindBare:
		if err := p.inherents.PreDispatch(xt.Function); err != nil {
			return Outcome{}, toValidity(err)
		}

		if err := p.bare.BareValidateAndPrepare(xt.Function, info, length); err != nil {
			return Outcome{}, toValidity(err)
		}

		post, dispatchErr := xt.Function.Dispatch(NoneOrigin())
		return p.barePostDispatch(info, PostInfoOf(post, dispatchErr), length, dispatchErr)

	case KindSigned:
		origin := SignedOrigin(p.mapper.FromNative(xt.Format.signer))
		out, err := xt.Format.ext.DispatchTransaction(origin, xt.Function, info, length)
		return out, toValidity(err)

	case KindGeneral:
		out, err := xt.Format.ext.DispatchTransaction(NoneOrigin(), xt.Function, info, length)
		return out, toValidity(err)

	case KindSelfContained:

		// The envelope passed validation, so failing here means the block
		// producer included something it shouldn't have.
		if err := xt.Function.PreDispatchSelfContained(xt.Format.info, info, length); err != nil {
			if errors.Is(err, ErrNotSelfContained) {
				return Outcome{}, &FatalError{Err: ErrBadProof.WithCause(err)}
			}
			return Outcome{}, &FatalError{Err: toValidity(err)}
		}

		post, dispatchErr := xt.Function.ApplySelfContained(xt.Format.info)
		if errors.Is(dispatchErr, ErrNotSelfContained) {
			return Outcome{}, &FatalError{Err: ErrBadProof.WithCause(dispatchErr)}
		}

		return p.barePostDispatch(info, PostInfoOf(post, dispatchErr), length, dispatchErr)
	}

	return Outcome{}, ErrCall.WithCause(ErrUnknownFormat)
}

// barePostDispatch runs the post dispatch accounting exactly once, whatever
// the dispatch result was.
func (p *Pipeline[S]) barePostDispatch(info weight.DispatchInfo, post weight.PostDispatchInfo, length int, dispatchErr error) (Outcome, error) {
	if post.ActualWeight == nil {
		actual := info.Weight
		post.ActualWeight = &actual
	}

	if err := p.bare.BarePostDispatch(info, &post, length, dispatchErr); err != nil {
		return Outcome{}, toValidity(err)
	}

	return Outcome{PostInfo: post, Err: dispatchErr}, nil
}
