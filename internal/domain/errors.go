package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrSessionClosed      = errors.New("session closed")
	ErrNoInitData         = errors.New("embedded view returned no init data")
	ErrMalformedResponse  = errors.New("malformed remote response")
	ErrInsufficientStars  = errors.New("insufficient stars balance")
)

type ErrorKind string

const (
	KindTransientNetwork   ErrorKind = "transient_network"
	KindCredentialInvalid  ErrorKind = "credential_invalid"
	KindStoreContention    ErrorKind = "store_contention"
	KindRemoteBusinessRule ErrorKind = "remote_business_rule"
	KindRemoteCorrectable  ErrorKind = "remote_correctable"
	KindUnexpected         ErrorKind = "unexpected"
)

type ConnectErrorKind string

const (
	ConnectTimeout      ConnectErrorKind = "timeout"
	ConnectUnauthorized ConnectErrorKind = "unauthorized"
	ConnectStoreLocked  ConnectErrorKind = "store_locked"
)

// ConnectError is returned by AccountSession.Connect.
type ConnectError struct {
	Kind    ConnectErrorKind
	Message string
}

func (e *ConnectError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("connect: %s", e.Kind)
	}
	return fmt.Sprintf("connect: %s: %s", e.Kind, e.Message)
}

type SessionErrorKind string

const (
	SessionUnauthenticated   SessionErrorKind = "unauthenticated"
	SessionStoreContention   SessionErrorKind = "store_contention"
	SessionCredentialMissing SessionErrorKind = "credential_missing"
)

type SessionError struct {
	Kind    SessionErrorKind
	Account string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s: %s", e.Account, e.Kind)
	}
	return fmt.Sprintf("session %s: %s: %v", e.Account, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// KindOf places err in the error taxonomy used to decide retry and reporting.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		switch {
		case sessionErr.Kind == SessionStoreContention:
			return KindStoreContention
		case sessionErr.Err != nil && KindOf(sessionErr.Err) == KindTransientNetwork:
			return KindTransientNetwork
		default:
			return KindCredentialInvalid
		}
	}

	var connectErr *ConnectError
	if errors.As(err, &connectErr) {
		switch connectErr.Kind {
		case ConnectTimeout:
			return KindTransientNetwork
		case ConnectStoreLocked:
			return KindStoreContention
		default:
			return KindCredentialInvalid
		}
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		switch {
		case remoteErr.Code == RemoteCodeUnauthorized:
			return KindCredentialInvalid
		case remoteErr.Code == RemoteCodeTransient:
			return KindTransientNetwork
		case FailureReasonFor(remoteErr.Code).Correctable():
			return KindRemoteCorrectable
		case remoteErr.Code == RemoteCodeBusinessRule:
			return KindRemoteBusinessRule
		}
	}

	if errors.Is(err, ErrInsufficientStars) {
		return KindRemoteBusinessRule
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}

	return KindUnexpected
}

// IsStoreLocked recognises credential-store contention, including the legacy
// "database is locked" message some session backends surface verbatim.
func IsStoreLocked(err error) bool {
	if err == nil {
		return false
	}

	var connectErr *ConnectError
	if errors.As(err, &connectErr) && connectErr.Kind == ConnectStoreLocked {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}
