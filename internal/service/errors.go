package service

import (
	"errors"
	"fmt"
)

// NotAuthorizedReason tells the client why a request was refused, from
// least to most specific.
type NotAuthorizedReason string

const (
	// ReasonNoConsent means no consent links this user to this usage
	// point at all.
	ReasonNoConsent NotAuthorizedReason = "no consent"
	// ReasonNotYetValid means consents exist but none has begun yet.
	ReasonNotYetValid NotAuthorizedReason = "consent not yet valid"
	// ReasonExpired means consents existed but all have expired.
	ReasonExpired NotAuthorizedReason = "consent expired"
	// ReasonIntegrity means the database refused to record the call,
	// typically because the consent window moved between resolution
	// and recording.
	ReasonIntegrity NotAuthorizedReason = "consent record refused"
)

// NotAuthorizedError is returned whenever an operation cannot be
// backed by a valid recorded consent. No upstream call is made when
// this error is returned.
type NotAuthorizedError struct {
	Reason       NotAuthorizedReason
	UserID       string
	UsagePointID string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized: %s for user %s on usage point %s",
		e.Reason, e.UserID, e.UsagePointID)
}

// IsNotAuthorized reports whether err is, or wraps, an authorization
// refusal.
func IsNotAuthorized(err error) bool {
	var na *NotAuthorizedError
	return errors.As(err, &na)
}

// BadRequestError is returned for malformed identifiers, unsupported
// series and invalid values. Handlers translate it to the transport's
// bad-request shape.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// IsBadRequest reports whether err is, or wraps, a client mistake.
func IsBadRequest(err error) bool {
	var br *BadRequestError
	return errors.As(err, &br)
}
