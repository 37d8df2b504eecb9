package domain

import (
	"fmt"
	"strings"
)

type RemoteCode string

const (
	RemoteCodeSubscriptionRequired RemoteCode = "SUBSCRIPTION_REQUIRED"
	RemoteCodeLinkClickRequired    RemoteCode = "LINK_CLICK_REQUIRED"
	RemoteCodeTunnelAckRequired    RemoteCode = "TUNNEL_ACK_REQUIRED"
	RemoteCodePortalAckRequired    RemoteCode = "PORTAL_ACK_REQUIRED"
	RemoteCodeUnauthorized         RemoteCode = "UNAUTHORIZED"
	RemoteCodeBusinessRule         RemoteCode = "BUSINESS_RULE"
	RemoteCodeTransient            RemoteCode = "TRANSIENT"
	RemoteCodeUnknown              RemoteCode = "UNKNOWN"
)

// RemoteError is a rejection returned by the remote application.
type RemoteError struct {
	Code    RemoteCode
	Message string
	Detail  RemoteDetail
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s", e.Code)
	}
	return fmt.Sprintf("remote: %s: %s", e.Code, e.Message)
}

// wireCodes is the declared classification table for extensions.code values.
var wireCodes = map[string]RemoteCode{
	"TELEGRAM_SUBSCRIPTION_REQUIRED":  RemoteCodeSubscriptionRequired,
	"TEST_SPIN_URL_CLICK_REQUIRED":    RemoteCodeLinkClickRequired,
	"TEST_SPIN_TONNEL_CLICK_REQUIRED": RemoteCodeTunnelAckRequired,
	"TEST_SPIN_PORTAL_CLICK_REQUIRED": RemoteCodePortalAckRequired,
	"UNAUTHENTICATED":                 RemoteCodeUnauthorized,
	"UNAUTHORIZED":                    RemoteCodeUnauthorized,
	"INSUFFICIENT_BALANCE":            RemoteCodeBusinessRule,
	"SPIN_COOLDOWN":                   RemoteCodeBusinessRule,
	"INTERNAL_SERVER_ERROR":           RemoteCodeTransient,
}

// ClassifyRemote maps a wire code to a RemoteCode. When the code is absent or
// undeclared the message is matched against legacy phrasings as a last resort.
func ClassifyRemote(wireCode, message string) RemoteCode {
	if code, ok := wireCodes[strings.ToUpper(strings.TrimSpace(wireCode))]; ok {
		return code
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "click the url"):
		return RemoteCodeLinkClickRequired
	case strings.Contains(lower, "subscri") && strings.Contains(lower, "channel"):
		return RemoteCodeSubscriptionRequired
	case strings.Contains(lower, "tonnel") && strings.Contains(lower, "click"):
		return RemoteCodeTunnelAckRequired
	case strings.Contains(lower, "portal") && strings.Contains(lower, "click"):
		return RemoteCodePortalAckRequired
	case strings.Contains(lower, "internal server error"), strings.Contains(lower, "422"):
		return RemoteCodeTransient
	default:
		return RemoteCodeUnknown
	}
}

func FailureReasonFor(code RemoteCode) FailureReason {
	switch code {
	case RemoteCodeSubscriptionRequired:
		return FailureNeedsSubscription
	case RemoteCodeLinkClickRequired:
		return FailureNeedsLinkAck
	case RemoteCodeTunnelAckRequired, RemoteCodePortalAckRequired:
		return FailureNeedsEmbeddedAppAck
	default:
		return FailureOther
	}
}
