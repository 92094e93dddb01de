package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// RootCodespace is the codespace for all errors defined in this module.
const RootCodespace = "lazyaccount"

const (
	codeInvalidConfiguration = uint32(iota) + 2
	codePredictionFailed
	codeLookupFailed
	codeAddressMismatch
	codeNotSigned
	codeSubmissionFailed
	codeTimedOut
	codeReverted
)

var (
	// ErrInvalidConfiguration is returned for locally detected input errors (empty owner set,
	// threshold out of range, missing builder fields, unsupported account kind).
	ErrInvalidConfiguration = errorsmod.Register(RootCodespace, codeInvalidConfiguration, "invalid configuration")
	// ErrPredictionFailed is returned when the counterfactual address could not be read from chain.
	ErrPredictionFailed = errorsmod.Register(RootCodespace, codePredictionFailed, "address prediction failed")
	// ErrLookupFailed is returned when a read-only lookup (nonce, init hash, proxy code) fails.
	ErrLookupFailed = errorsmod.Register(RootCodespace, codeLookupFailed, "read-only lookup failed")
	// ErrAddressMismatch is returned when init code deploys to an address other than the sender.
	ErrAddressMismatch = errorsmod.Register(RootCodespace, codeAddressMismatch, "init code does not deploy sender")
	// ErrNotSigned is returned when an operation without signature bytes is submitted.
	ErrNotSigned = errorsmod.Register(RootCodespace, codeNotSigned, "user operation is not signed")
	// ErrSubmissionFailed is returned when the handleOps broadcast failed. The batch may or may
	// not have reached the network.
	ErrSubmissionFailed = errorsmod.Register(RootCodespace, codeSubmissionFailed, "submission failed")
	// ErrTimedOut is returned when inclusion was not observed before the deadline.
	ErrTimedOut = errorsmod.Register(RootCodespace, codeTimedOut, "timed out waiting for inclusion")
	// ErrReverted is returned when the batch was included but an operation failed.
	ErrReverted = errorsmod.Register(RootCodespace, codeReverted, "user operation reverted")
)

// ErrorClass groups errors by the retry policy a caller should apply.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	// ClassConfiguration errors are detected before any network interaction. Never retry.
	ClassConfiguration
	// ClassReadOnly errors come from side-effect free calls. Safe to retry with backoff.
	ClassReadOnly
	// ClassSubmission errors are ambiguous. Never resend the same signed payload.
	ClassSubmission
	// ClassOnChain errors are terminal for the operation.
	ClassOnChain
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassReadOnly:
		return "read-only"
	case ClassSubmission:
		return "submission"
	case ClassOnChain:
		return "on-chain"
	default:
		return "unknown"
	}
}

// Classify maps err onto exactly one taxonomy entry.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrAddressMismatch),
		errors.Is(err, ErrNotSigned):
		return ClassConfiguration
	case errors.Is(err, ErrPredictionFailed),
		errors.Is(err, ErrLookupFailed):
		return ClassReadOnly
	case errors.Is(err, ErrSubmissionFailed),
		errors.Is(err, ErrTimedOut):
		return ClassSubmission
	case errors.Is(err, ErrReverted):
		return ClassOnChain
	default:
		return ClassUnknown
	}
}

// IsRetryable reports whether the failed call can be repeated as is.
func IsRetryable(err error) bool {
	return Classify(err) == ClassReadOnly
}
