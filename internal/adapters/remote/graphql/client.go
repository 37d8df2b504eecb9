package graphql

import (
	"bytes"
	"context"
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

const (
	maxResponseBytes = 4 << 20
	defaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"
)

var ErrUnknownOperation = errors.New("unknown remote operation")

// Factory builds one Client per account. Clients share the HTTP transport but
// never share tokens.
type Factory struct {
	Endpoint       string
	RefCode        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.RemoteFactory = Factory{}

func (f Factory) ForAccount(account string, initData string) ports.RemoteAPI {
	return &Client{
		Endpoint:       f.Endpoint,
		RefCode:        f.RefCode,
		HTTPClient:     f.HTTPClient,
		RequestTimeout: f.RequestTimeout,
		account:        account,
		initData:       initData,
	}
}

// Client executes batched GraphQL calls for one account. The bearer token is
// obtained from the account's init data on first use and kept in memory only.
type Client struct {
	Endpoint       string
	RefCode        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration

	account  string
	initData string

	mu    sync.Mutex
	token string
}

var _ ports.RemoteAPI = (*Client)(nil)

type request struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []responseError `json:"errors"`
}

type responseError struct {
	Message    string     `json:"message"`
	Extensions extensions `json:"extensions"`
}

type extensions struct {
	Code     string `json:"code"`
	Username string `json:"username"`
	URL      string `json:"url"`
	Link     string `json:"link"`
	TaskID   any    `json:"task_id"`
}

type authPayload struct {
	Auth struct {
		Token   string `json:"token"`
		Success bool   `json:"success"`
	} `json:"authTelegramInitData"`
}

func (c *Client) Execute(ctx context.Context, operation string, variables map[string]any) (json.RawMessage, error) {
	if _, ok := documents[operation]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}

	token, err := c.ensureToken(ctx, false)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, operation, variables, token)
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Code == domain.RemoteCodeUnauthorized {
		token, err = c.ensureToken(ctx, true)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, operation, variables, token)
	}

	return data, err
}

func (c *Client) ensureToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !refresh {
		return c.token, nil
	}
	if strings.TrimSpace(c.initData) == "" {
		return "", fmt.Errorf("authenticate %s: %w", c.account, domain.ErrNoInitData)
	}

	variables := map[string]any{"initData": c.initData}
	if c.RefCode != "" {
		variables["refCode"] = c.RefCode
	}

	data, err := c.do(ctx, ports.OperationAuthWithInitData, variables, "")
	if err != nil {
		return "", fmt.Errorf("authenticate %s: %w", c.account, err)
	}

	var payload authPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode auth response: %w", errors.Join(domain.ErrMalformedResponse, err))
	}
	if payload.Auth.Token == "" {
		return "", fmt.Errorf("authenticate %s: %w", c.account, &domain.RemoteError{
			Code:    domain.RemoteCodeUnauthorized,
			Message: "auth response carried no token",
		})
	}

	c.token = payload.Auth.Token
	return c.token, nil
}

func (c *Client) do(ctx context.Context, operation string, variables map[string]any, token string) (json.RawMessage, error) {
	if err := validateEndpoint(c.Endpoint); err != nil {
		return nil, err
	}
	if variables == nil {
		variables = map[string]any{}
	}

	body, err := json.Marshal([]request{{
		OperationName: operation,
		Query:         documents[operation],
		Variables:     variables,
	}})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", operation, err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("x-batch", "true")
	req.Header.Set("apollo-require-preflight", "true")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}

	if statusErr := statusError(resp.StatusCode); statusErr != nil {
		if payload, decodeErr := decodeResponse(raw); decodeErr == nil && len(payload.Errors) > 0 {
			return nil, toRemoteError(payload.Errors[0])
		}
		return nil, fmt.Errorf("request %s: %w", operation, statusErr)
	}

	payload, err := decodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	if len(payload.Errors) > 0 {
		return nil, toRemoteError(payload.Errors[0])
	}
	if len(payload.Data) == 0 || string(payload.Data) == "null" {
		return nil, fmt.Errorf("decode %s response: %w: empty data", operation, domain.ErrMalformedResponse)
	}

	return payload.Data, nil
}

// decodeResponse accepts both the batched array shape and a bare object.
func decodeResponse(raw []byte) (response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return response{}, domain.ErrMalformedResponse
	}

	if trimmed[0] == '[' {
		var batch []response
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return response{}, errors.Join(domain.ErrMalformedResponse, err)
		}
		if len(batch) == 0 {
			return response{}, domain.ErrMalformedResponse
		}
		return batch[0], nil
	}

	var single response
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return response{}, errors.Join(domain.ErrMalformedResponse, err)
	}
	return single, nil
}

func toRemoteError(e responseError) *domain.RemoteError {
	code := domain.ClassifyRemote(e.Extensions.Code, e.Message)
	var gate domain.RemoteCode
	if code == domain.RemoteCodeTunnelAckRequired || code == domain.RemoteCodePortalAckRequired {
		gate = code
	}

	return &domain.RemoteError{
		Code:    code,
		Message: e.Message,
		Detail: domain.RemoteDetail{
			ChannelHandle: strings.TrimPrefix(e.Extensions.Username, "@"),
			InviteURL:     e.Extensions.URL,
			LinkURL:       e.Extensions.Link,
			TaskID:        taskIDString(e.Extensions.TaskID),
			Message:       e.Message,
			Gate:          gate,
		},
	}
}

func taskIDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}

func statusError(status int) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.RemoteError{Code: domain.RemoteCodeUnauthorized, Message: fmt.Sprintf("status %d", status)}
	case status == http.StatusUnprocessableEntity || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return &domain.RemoteError{Code: domain.RemoteCodeTransient, Message: fmt.Sprintf("status %d", status)}
	default:
		return &domain.RemoteError{Code: domain.RemoteCodeUnknown, Message: fmt.Sprintf("status %d", status)}
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, timeout)
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("graphql endpoint is required")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse graphql endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("graphql endpoint must use http or https")
	}
	if parsed.Host == "" {
		return errors.New("graphql endpoint host is required")
	}

	return nil
}
