package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/premierreview/reviewbot/internal/store"
)

// Graph API defaults.
const (
	DefaultGraphURL    = "https://graph.facebook.com/v24.0/me/messages"
	DefaultSendTimeout = 10 * time.Second
	maxErrorBodyBytes  = 64 << 10
)

// Graph API error codes that mean the user can no longer be reached.
const (
	errCodeInvalidParam      = 100
	errSubcodeNoMatchingUser = 2018001
	errCodeUserUnavailable   = 551
)

// graphError mirrors the "error" object of a Graph API error response.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *graphError) Error() string {
	return fmt.Sprintf("graph API error %d/%d: %s", e.Code, e.Subcode, e.Message)
}

// unreachable reports whether the error means the recipient is permanently gone.
func (e *graphError) unreachable() bool {
	return (e.Code == errCodeInvalidParam && e.Subcode == errSubcodeNoMatchingUser) || e.Code == errCodeUserUnavailable
}

// GraphOpts configures a GraphGateway.
type GraphOpts struct {
	AccessToken string
	GraphURL    string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// GraphOption configures a GraphGateway.
type GraphOption func(*GraphOpts)

// WithAccessToken sets the page access token.
func WithAccessToken(token string) GraphOption {
	return func(o *GraphOpts) { o.AccessToken = token }
}

// WithGraphURL overrides the send API endpoint.
func WithGraphURL(u string) GraphOption {
	return func(o *GraphOpts) { o.GraphURL = u }
}

// WithSendTimeout bounds each Graph API request.
func WithSendTimeout(d time.Duration) GraphOption {
	return func(o *GraphOpts) { o.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) GraphOption {
	return func(o *GraphOpts) { o.HTTPClient = c }
}

// GraphGateway sends messages through the Messenger Send API and tracks
// recipients that became unreachable.
type GraphGateway struct {
	users    ReachabilityStore
	token    string
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// Compile-time check that GraphGateway implements Gateway.
var _ Gateway = (*GraphGateway)(nil)

// NewGraphGateway creates a gateway. users may be nil, in which case
// reachability is neither checked nor recorded.
func NewGraphGateway(users ReachabilityStore, opts ...GraphOption) (*GraphGateway, error) {
	cfg := GraphOpts{GraphURL: DefaultGraphURL, Timeout: DefaultSendTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("page access token not set")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &GraphGateway{
		users:    users,
		token:    cfg.AccessToken,
		endpoint: cfg.GraphURL,
		timeout:  cfg.Timeout,
		client:   client,
	}, nil
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message *struct {
		Text string `json:"text"`
	} `json:"message,omitempty"`
	SenderAction string `json:"sender_action,omitempty"`
}

func (g *GraphGateway) SendMessage(ctx context.Context, recipientID, text string) bool {
	if !g.reachable(ctx, recipientID) {
		slog.Warn("GraphGateway.SendMessage: skipping unreachable user", "recipientID", recipientID)
		return false
	}
	var req sendRequest
	req.Recipient.ID = recipientID
	req.Message = &struct {
		Text string `json:"text"`
	}{Text: text}
	if err := g.post(ctx, req); err != nil {
		slog.Error("GraphGateway.SendMessage: send failed", "error", err, "recipientID", recipientID)
		g.markIfUnreachable(ctx, recipientID, err)
		return false
	}
	slog.Debug("GraphGateway.SendMessage: message sent", "recipientID", recipientID, "length", len(text))
	g.SendTypingIndicator(ctx, recipientID, false)
	return true
}

func (g *GraphGateway) SendTypingIndicator(ctx context.Context, recipientID string, on bool) bool {
	if !g.reachable(ctx, recipientID) {
		slog.Debug("GraphGateway.SendTypingIndicator: skipping unreachable user", "recipientID", recipientID)
		return false
	}
	action := "typing_off"
	if on {
		action = "typing_on"
	}
	var req sendRequest
	req.Recipient.ID = recipientID
	req.SenderAction = action
	if err := g.post(ctx, req); err != nil {
		slog.Warn("GraphGateway.SendTypingIndicator: failed", "error", err, "recipientID", recipientID, "action", action)
		g.markIfUnreachable(ctx, recipientID, err)
		return false
	}
	return true
}

// reachable reports false only when the user is known and flagged unreachable.
func (g *GraphGateway) reachable(ctx context.Context, recipientID string) bool {
	if g.users == nil {
		return true
	}
	u, err := g.users.GetUser(ctx, recipientID)
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	if err != nil {
		slog.Warn("GraphGateway: reachability lookup failed", "error", err, "recipientID", recipientID)
		return true
	}
	return u.IsMessengerReachable
}

func (g *GraphGateway) markIfUnreachable(ctx context.Context, recipientID string, err error) {
	var ge *graphError
	if !errors.As(err, &ge) || !ge.unreachable() || g.users == nil {
		return
	}
	if serr := g.users.SetReachable(ctx, recipientID, false); serr != nil && !errors.Is(serr, store.ErrNotFound) {
		slog.Error("GraphGateway: failed to mark user unreachable", "error", serr, "recipientID", recipientID)
		return
	}
	slog.Warn("GraphGateway: user marked unreachable", "recipientID", recipientID, "code", ge.Code, "subcode", ge.Subcode)
}

func (g *GraphGateway) post(ctx context.Context, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode send request: %w", err)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return fmt.Errorf("invalid graph URL: %w", err)
	}
	q := u.Query()
	q.Set("access_token", g.token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the access token.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("graph API request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var envelope struct {
		Error *graphError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error
	}
	return fmt.Errorf("graph API returned status %d: %s", resp.StatusCode, string(raw))
}
