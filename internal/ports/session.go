package ports

import (
	"context"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

type EmbeddedView struct {
	ReturnURL string
}

// AccountSession is a live authenticated handle for one account. Calls on a
// single session are never issued concurrently.
type AccountSession interface {
	Connect(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error
	JoinChannelByHandle(ctx context.Context, handle string) error
	JoinChannelByInvite(ctx context.Context, inviteToken string) error
	OpenEmbeddedView(ctx context.Context, url string) (EmbeddedView, error)
	SendRawStartCommand(ctx context.Context, botRef, payload string) error
}

type SessionDialer interface {
	Dial(ctx context.Context, account domain.Account, credential []byte) (AccountSession, error)
}
