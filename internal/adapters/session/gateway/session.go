package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

const maxGatewayResponseBytes = 1 << 20

// Dialer hands out sessions backed by a session gateway. The gateway owns the
// protocol connection; this side only forwards account actions.
type Dialer struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.SessionDialer = Dialer{}

func (d Dialer) Dial(_ context.Context, account domain.Account, credential []byte) (ports.AccountSession, error) {
	if strings.TrimSpace(account.Name) == "" {
		return nil, errors.New("account name is required")
	}
	if len(credential) == 0 {
		return nil, fmt.Errorf("dial %s: %w", account.Name, domain.ErrCredentialNotFound)
	}
	if _, err := buildURL(d.BaseURL, account.Name, "connect"); err != nil {
		return nil, err
	}

	return &Session{
		dialer:     d,
		name:       account.Name,
		credential: append([]byte(nil), credential...),
	}, nil
}

// Session is one account's handle on the gateway.
type Session struct {
	dialer     Dialer
	name       string
	credential []byte

	mu     sync.Mutex
	closed bool
}

var _ ports.AccountSession = (*Session)(nil)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type connectRequest struct {
	Credential string `json:"credential"`
}

type authorizedResponse struct {
	Authorized bool `json:"authorized"`
}

type joinRequest struct {
	Handle string `json:"handle,omitempty"`
	Invite string `json:"invite,omitempty"`
}

type webviewRequest struct {
	URL string `json:"url"`
}

type webviewResponse struct {
	ReturnURL string `json:"return_url"`
}

type startRequest struct {
	Bot     string `json:"bot"`
	Payload string `json:"payload"`
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()

	body := connectRequest{Credential: base64.StdEncoding.EncodeToString(s.credential)}
	if err := s.call(ctx, http.MethodPost, "connect", body, nil); err != nil {
		return fmt.Errorf("connect %s: %w", s.name, err)
	}
	return nil
}

func (s *Session) IsAuthorized(ctx context.Context) (bool, error) {
	var resp authorizedResponse
	if err := s.call(ctx, http.MethodGet, "authorized", nil, &resp); err != nil {
		return false, fmt.Errorf("check authorization %s: %w", s.name, err)
	}
	return resp.Authorized, nil
}

func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.call(ctx, http.MethodPost, "disconnect", nil, nil); err != nil {
		return fmt.Errorf("disconnect %s: %w", s.name, err)
	}
	return nil
}

func (s *Session) JoinChannelByHandle(ctx context.Context, handle string) error {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return errors.New("channel handle is required")
	}
	if err := s.call(ctx, http.MethodPost, "join", joinRequest{Handle: handle}, nil); err != nil {
		return fmt.Errorf("join @%s: %w", handle, err)
	}
	return nil
}

func (s *Session) JoinChannelByInvite(ctx context.Context, inviteToken string) error {
	inviteToken = strings.TrimSpace(inviteToken)
	if inviteToken == "" {
		return errors.New("invite token is required")
	}
	if err := s.call(ctx, http.MethodPost, "join", joinRequest{Invite: inviteToken}, nil); err != nil {
		return fmt.Errorf("join invite: %w", err)
	}
	return nil
}

func (s *Session) OpenEmbeddedView(ctx context.Context, rawURL string) (ports.EmbeddedView, error) {
	var resp webviewResponse
	if err := s.call(ctx, http.MethodPost, "webview", webviewRequest{URL: rawURL}, &resp); err != nil {
		return ports.EmbeddedView{}, fmt.Errorf("open embedded view: %w", err)
	}
	if resp.ReturnURL == "" {
		return ports.EmbeddedView{}, errors.New("open embedded view: gateway returned no url")
	}
	return ports.EmbeddedView{ReturnURL: resp.ReturnURL}, nil
}

func (s *Session) SendRawStartCommand(ctx context.Context, botRef, payload string) error {
	if err := s.call(ctx, http.MethodPost, "start", startRequest{Bot: botRef, Payload: payload}, nil); err != nil {
		return fmt.Errorf("start %s: %w", botRef, err)
	}
	return nil
}

func (s *Session) call(ctx context.Context, method, action string, in any, out any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed && action != "connect" {
		return domain.ErrSessionClosed
	}

	endpoint, err := buildURL(s.dialer.BaseURL, s.name, action)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", action, err)
		}
		body = bytes.NewReader(encoded)
	}

	requestCtx, cancel := s.dialer.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.dialer.httpClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && action == "connect" {
			return &domain.ConnectError{Kind: domain.ConnectTimeout, Message: err.Error()}
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeGatewayError(resp)
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGatewayResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

func decodeGatewayError(resp *http.Response) error {
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGatewayResponseBytes)).Decode(&payload); err != nil || payload.Code == "" {
		if resp.StatusCode == http.StatusUnauthorized {
			return &domain.ConnectError{Kind: domain.ConnectUnauthorized, Message: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return fmt.Errorf("gateway: status %d", resp.StatusCode)
	}

	switch domain.ConnectErrorKind(payload.Code) {
	case domain.ConnectTimeout, domain.ConnectUnauthorized, domain.ConnectStoreLocked:
		return &domain.ConnectError{Kind: domain.ConnectErrorKind(payload.Code), Message: payload.Message}
	}
	if payload.Message != "" {
		return fmt.Errorf("gateway: %s: %s", payload.Code, payload.Message)
	}
	return fmt.Errorf("gateway: %s", payload.Code)
}

func (d Dialer) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

func (d Dialer) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := d.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 20 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func buildURL(baseURL, name, action string) (string, error) {
	if baseURL == "" {
		return "", errors.New("gateway base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("gateway base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("gateway base url host is required")
	}

	return parsed.JoinPath("v1", "sessions", name, action).String(), nil
}
