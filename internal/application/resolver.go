package application

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// AckRegistrar is the part of the remote API the resolver drives.
type AckRegistrar interface {
	MarkURLClick(ctx context.Context, initData string) error
	MarkTunnelClick(ctx context.Context) error
	MarkPortalClick(ctx context.Context) error
}

// PrerequisiteResolver performs the one corrective action a failure reason
// calls for.
type PrerequisiteResolver struct {
	clock           ports.Clock
	settleAfterJoin time.Duration
}

func NewPrerequisiteResolver(clock ports.Clock, settleAfterJoin time.Duration) *PrerequisiteResolver {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &PrerequisiteResolver{clock: clock, settleAfterJoin: settleAfterJoin}
}

// Resolve reports whether the corrective action completed. It never panics
// and never returns an error; failures are logged.
func (r *PrerequisiteResolver) Resolve(ctx context.Context, account string, session ports.AccountSession, api AckRegistrar, reason domain.FailureReason, detail domain.RemoteDetail) (resolved bool) {
	logger := log.ForAccount(ctx, "resolver", account)
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().Interface("panic", recovered).Str("reason", string(reason)).Msg("corrective action panicked")
			resolved = false
		}
		metrics.RecordCorrection(string(reason), resolved)
	}()

	switch reason {
	case domain.FailureNeedsSubscription:
		return r.subscribe(ctx, account, session, detail.InviteURL, detail.ChannelHandle)
	case domain.FailureNeedsLinkAck:
		return r.acknowledgeLink(ctx, account, session, api, detail)
	case domain.FailureNeedsEmbeddedAppAck:
		return r.acknowledgeGate(ctx, account, api, detail.Gate)
	default:
		logger.Debug().Str("reason", string(reason)).Msg("reason is not correctable")
		return false
	}
}

// ResolveClaimGate runs the zero-argument acknowledgement for a tunnel or
// portal gate hit while claiming or exchanging.
func (r *PrerequisiteResolver) ResolveClaimGate(ctx context.Context, account string, api AckRegistrar, code domain.RemoteCode) (resolved bool) {
	logger := log.ForAccount(ctx, "resolver", account)
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().Interface("panic", recovered).Msg("gate acknowledgement panicked")
			resolved = false
		}
	}()

	switch code {
	case domain.RemoteCodeTunnelAckRequired, domain.RemoteCodePortalAckRequired:
		return r.acknowledgeGate(ctx, account, api, code)
	default:
		return false
	}
}

func (r *PrerequisiteResolver) subscribe(ctx context.Context, account string, session ports.AccountSession, inviteURL, handle string) bool {
	logger := log.ForAccount(ctx, "resolver", account)

	if token, ok := InviteToken(inviteURL); ok {
		err := session.JoinChannelByInvite(ctx, token)
		if err == nil {
			logger.Info().Msg("joined channel by invite")
			return r.settle(ctx)
		}
		logger.Warn().Err(err).Msg("invite join failed, trying public handle")
	}

	if handle == "" {
		handle = ChannelHandle(inviteURL)
	}
	if handle == "" {
		logger.Warn().Msg("subscription required but no channel reference given")
		return false
	}

	if err := session.JoinChannelByHandle(ctx, handle); err != nil {
		logger.Warn().Err(err).Str("channel", handle).Msg("join by handle failed")
		return false
	}
	logger.Info().Str("channel", handle).Msg("joined channel")
	return r.settle(ctx)
}

func (r *PrerequisiteResolver) acknowledgeLink(ctx context.Context, account string, session ports.AccountSession, api AckRegistrar, detail domain.RemoteDetail) bool {
	logger := log.ForAccount(ctx, "resolver", account)

	link := detail.LinkURL
	if link == "" {
		link = detail.InviteURL
	}

	switch {
	case IsEmbeddedAppURL(link):
		view, err := session.OpenEmbeddedView(ctx, link)
		if err != nil {
			logger.Warn().Err(err).Msg("open embedded view failed")
			return false
		}
		initData, err := InitDataFromURL(view.ReturnURL)
		if err != nil {
			logger.Warn().Err(err).Msg("embedded view returned no init data")
			return false
		}
		if err := api.MarkURLClick(ctx, initData); err != nil {
			logger.Warn().Err(err).Msg("register link click failed")
			return false
		}
		logger.Info().Str("task_id", detail.TaskID).Msg("link acknowledged via embedded view")
		return true

	case link != "" || detail.ChannelHandle != "":
		if !r.subscribe(ctx, account, session, link, detail.ChannelHandle) {
			return false
		}
		if err := api.MarkURLClick(ctx, ""); err != nil {
			logger.Warn().Err(err).Msg("register link click failed")
			return false
		}
		logger.Info().Str("task_id", detail.TaskID).Msg("link acknowledged via channel")
		return true

	default:
		logger.Warn().Msg("link acknowledgement required but no link given")
		return false
	}
}

func (r *PrerequisiteResolver) acknowledgeGate(ctx context.Context, account string, api AckRegistrar, gate domain.RemoteCode) bool {
	logger := log.ForAccount(ctx, "resolver", account)

	var err error
	if gate == domain.RemoteCodePortalAckRequired {
		err = api.MarkPortalClick(ctx)
	} else {
		err = api.MarkTunnelClick(ctx)
	}
	if err != nil {
		logger.Warn().Err(err).Str("gate", string(gate)).Msg("gate acknowledgement failed")
		return false
	}
	return true
}

func (r *PrerequisiteResolver) settle(ctx context.Context) bool {
	return r.clock.Sleep(ctx, r.settleAfterJoin) == nil
}

// IsEmbeddedAppURL reports whether link opens an embedded application rather
// than a channel.
func IsEmbeddedAppURL(link string) bool {
	return strings.Contains(link, "/dapp") || strings.Contains(link, "startapp=")
}

// InviteToken extracts HASH from t.me/+HASH or t.me/joinchat/HASH.
func InviteToken(link string) (string, bool) {
	path := telegramPath(link)
	switch {
	case strings.HasPrefix(path, "+"):
		token := strings.TrimPrefix(path, "+")
		return token, token != ""
	case strings.HasPrefix(path, "joinchat/"):
		token := strings.TrimPrefix(path, "joinchat/")
		return token, token != ""
	default:
		return "", false
	}
}

// ChannelHandle extracts the public channel name from a t.me/name link.
func ChannelHandle(link string) string {
	path := telegramPath(link)
	if path == "" || strings.HasPrefix(path, "+") || strings.HasPrefix(path, "joinchat/") {
		return ""
	}
	handle, _, _ := strings.Cut(path, "/")
	return strings.TrimPrefix(handle, "@")
}

func telegramPath(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	if host != "t.me" && host != "telegram.me" {
		return ""
	}
	return strings.Trim(parsed.Path, "/")
}

// InitDataFromURL pulls the signed identity payload out of the
// #tgWebAppData= fragment of an embedded view's return URL.
func InitDataFromURL(returnURL string) (string, error) {
	_, fragment, found := strings.Cut(returnURL, "#")
	if !found {
		return "", domain.ErrNoInitData
	}

	const marker = "tgWebAppData="
	idx := strings.Index(fragment, marker)
	if idx < 0 {
		return "", domain.ErrNoInitData
	}
	encoded, _, _ := strings.Cut(fragment[idx+len(marker):], "&")

	initData, err := url.PathUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("decode init data: %w", err)
	}
	if initData == "" {
		return "", domain.ErrNoInitData
	}
	return initData, nil
}
