package otp

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

// VerifyReason classifies a failed verification.
type VerifyReason string

const (
	ReasonNotFound VerifyReason = "not_found"
	ReasonExpired  VerifyReason = "expired"
)

// VerifyError is returned when no live challenge accepts the supplied code.
type VerifyError struct {
	Reason VerifyReason
}

func (e *VerifyError) Error() string {
	if e.Reason == ReasonExpired {
		return "OTP has expired"
	}
	return "Invalid OTP code or session"
}

// DispatchError reports that a challenge was stored but its email could not be sent.
// Issuing again supersedes the undelivered challenge.
type DispatchError struct {
	ChallengeID uuid.UUID
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("otp %s dispatch failed: %v", e.ChallengeID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func verifyFailed(reason VerifyReason) error {
	domainErr := &VerifyError{Reason: reason}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, domainErr, domainErr.Error()).
		WithDetails(map[string]any{"reason": reason})
}

func dispatchFailed(challengeID uuid.UUID, err error) error {
	domainErr := &DispatchError{ChallengeID: challengeID, Err: err}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, domainErr, "verification code could not be delivered").
		WithDetails(map[string]any{"challenge_id": challengeID.String()})
}
