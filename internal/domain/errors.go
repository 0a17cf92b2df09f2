package domain

import "errors"

// Kind names a class of failure independent of its message.
type Kind string

const (
	KindSessionInactive        Kind = "SessionInactive"
	KindSessionExpired         Kind = "SessionExpired"
	KindUnauthorizedSigner     Kind = "UnauthorizedSigner"
	KindUnauthorizedOwner      Kind = "UnauthorizedOwner"
	KindStrategyNotEnabled     Kind = "StrategyNotEnabled"
	KindExposureLimitExceeded  Kind = "ExposureLimitExceeded"
	KindOverflow               Kind = "Overflow"
	KindInvalidRange           Kind = "InvalidRange"
	KindProtocolStateViolation Kind = "ProtocolStateViolation"
	KindSessionNotFound        Kind = "SessionNotFound"
	KindMonitorNotFound        Kind = "MonitorNotFound"
	KindMonitorExists          Kind = "MonitorExists"
	KindVenueRejected          Kind = "VenueRejected"
	KindInvalidRecord          Kind = "InvalidRecord"
	KindInvalidArgument        Kind = "InvalidArgument"
	KindInternal               Kind = "Internal"
)

// Error is a terminal, classified failure. Sentinels below are compared with
// errors.Is; wrap them with fmt.Errorf to add context.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the failure class.
func (e *Error) Kind() Kind { return e.kind }

var (
	ErrSessionInactive        = &Error{KindSessionInactive, "session is not active"}
	ErrSessionExpired         = &Error{KindSessionExpired, "session has expired"}
	ErrUnauthorizedSigner     = &Error{KindUnauthorizedSigner, "caller is not the delegated signer"}
	ErrUnauthorizedOwner      = &Error{KindUnauthorizedOwner, "caller is not the session owner"}
	ErrStrategyNotEnabled     = &Error{KindStrategyNotEnabled, "strategy not enabled for this session"}
	ErrExposureLimitExceeded  = &Error{KindExposureLimitExceeded, "action exceeds the session exposure cap"}
	ErrOverflow               = &Error{KindOverflow, "arithmetic overflow"}
	ErrInvalidRange           = &Error{KindInvalidRange, "min bound must be <= max bound"}
	ErrProtocolStateViolation = &Error{KindProtocolStateViolation, "custody transition not valid from current state"}
	ErrSessionNotFound        = &Error{KindSessionNotFound, "session not found"}
	ErrMonitorNotFound        = &Error{KindMonitorNotFound, "monitor not found"}
	ErrMonitorExists          = &Error{KindMonitorExists, "session already has a monitor"}
	ErrVenueRejected          = &Error{KindVenueRejected, "venue call rejected"}
	ErrInvalidRecord          = &Error{KindInvalidRecord, "invalid record encoding"}
	ErrInvalidArgument        = &Error{KindInvalidArgument, "invalid argument"}
)

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// IsAuthorizationFailure reports whether err came from an authorization gate
// rather than from a protocol or infrastructure fault.
func IsAuthorizationFailure(err error) bool {
	switch KindOf(err) {
	case KindSessionInactive, KindSessionExpired, KindUnauthorizedSigner, KindUnauthorizedOwner,
		KindStrategyNotEnabled, KindExposureLimitExceeded, KindOverflow:
		return true
	}
	return false
}
