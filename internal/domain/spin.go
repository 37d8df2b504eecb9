package domain

import (
	"errors"
	"fmt"
	"time"
)

type FailureReason string

const (
	FailureNone                FailureReason = ""
	FailureNeedsSubscription   FailureReason = "needs_subscription"
	FailureNeedsLinkAck        FailureReason = "needs_link_ack"
	FailureNeedsEmbeddedAppAck FailureReason = "needs_embedded_app_ack"
	FailureCooldown            FailureReason = "cooldown"
	FailureOther               FailureReason = "other"
)

// Correctable reports whether a PrerequisiteResolver may act on the reason.
func (r FailureReason) Correctable() bool {
	switch r {
	case FailureNeedsSubscription, FailureNeedsLinkAck, FailureNeedsEmbeddedAppAck:
		return true
	default:
		return false
	}
}

// RemoteDetail carries the free-form fields the remote attaches to a rejection.
type RemoteDetail struct {
	ChannelHandle string `json:"username,omitempty"`
	InviteURL     string `json:"url,omitempty"`
	LinkURL       string `json:"link,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
	Message       string `json:"message,omitempty"`
	// Gate names the embedded-app acknowledgement a rejection asked for.
	Gate RemoteCode `json:"gate,omitempty"`
}

type SpinType string

const (
	SpinTypeFree    SpinType = "X1"
	SpinTypePaid    SpinType = "PAID"
	SpinTypeX200    SpinType = "X200"
	SpinTypePremium SpinType = "PREMIUM"
)

func ParseSpinType(raw string) (SpinType, error) {
	switch SpinType(raw) {
	case SpinTypeFree, SpinTypePaid, SpinTypeX200, SpinTypePremium:
		return SpinType(raw), nil
	case "":
		return SpinTypePaid, nil
	default:
		return "", fmt.Errorf("unsupported spin type %q", raw)
	}
}

type SpinOutcome struct {
	Succeeded bool
	Reason    FailureReason
	Prize     *RewardItem
	Detail    RemoteDetail
}

func (o SpinOutcome) Validate() error {
	if o.Succeeded {
		if o.Reason != FailureNone {
			return errors.New("successful outcome carries a failure reason")
		}
		return nil
	}

	if o.Reason == FailureNone {
		return errors.New("failed outcome is missing a failure reason")
	}
	if o.Prize != nil {
		return errors.New("failed outcome carries a prize")
	}

	return nil
}

func SpinSucceeded(prize *RewardItem) SpinOutcome {
	return SpinOutcome{Succeeded: true, Prize: prize}
}

func SpinFailed(reason FailureReason, detail RemoteDetail) SpinOutcome {
	if reason == FailureNone {
		reason = FailureOther
	}
	return SpinOutcome{Reason: reason, Detail: detail}
}

// Profile is the remote account view used for eligibility and balances.
type Profile struct {
	UserID       string
	StarsBalance int64
	Balance      int64
	NextFreeSpin *time.Time
}

func (p Profile) OnCooldown() bool {
	return p.NextFreeSpin != nil
}
