package common

import (
	"errors"
	"fmt"
)

// ErrTransient and ErrPermanent are sentinel errors providers use when
// classifying transport level failures.
var (
	ErrTransient = errors.New("transient error")
	ErrPermanent = errors.New("permanent error")
)

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// OutcomeFromError converts a provider error into an Outcome. Unclassified
// errors are treated as transient since the request may not have reached
// the provider. name is the bounded error class recorded as ErrorName.
func OutcomeFromError(err error, code int, name string) Outcome {
	if err == nil {
		return Outcome{Status: StatusUnknown, Code: code}
	}
	status := StatusRejectedTransient
	if errors.Is(err, ErrPermanent) {
		status = StatusRejectedPermanent
	}
	return Outcome{Status: status, Reason: err.Error(), ErrorName: name, Code: code}
}
