// Package pipeline turns inbound Messenger events into stage handler runs,
// chat history and outbound messages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/premierreview/reviewbot/internal/assistant"
	"github.com/premierreview/reviewbot/internal/flow"
	"github.com/premierreview/reviewbot/internal/messaging"
	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/persuasion"
	"github.com/premierreview/reviewbot/internal/store"
)

// DefaultAdminPause is how long automated replies stay suppressed after a
// human admin answers from the page inbox.
const DefaultAdminPause = 10 * time.Minute

// Router runs the handler for a user's current stage. *flow.Registry
// satisfies it.
type Router interface {
	Handle(ctx context.Context, user models.User, ev models.InboundEvent) (flow.Result, error)
}

// Store is the persistence the pipeline needs.
type Store interface {
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetOrCreateUser(ctx context.Context, id string) (models.User, bool, error)
	SaveUser(ctx context.Context, u models.User) error
	AppendChatLog(ctx context.Context, userID string, sender models.SenderType, content string) (models.ChatLog, error)
	SummaryStore
}

// Opts holds pipeline configuration.
type Opts struct {
	AppID           string
	LoadingMessages bool
	AdminPause      time.Duration
	Now             func() time.Time
}

// Option configures a Pipeline.
type Option func(*Opts)

// WithAppID sets this bot's own Facebook app id, used to recognise self-echoes.
func WithAppID(id string) Option {
	return func(o *Opts) { o.AppID = strings.TrimSpace(id) }
}

// WithLoadingMessages enables a "please wait" message before slow AI calls.
func WithLoadingMessages(enabled bool) Option {
	return func(o *Opts) { o.LoadingMessages = enabled }
}

// WithAdminPause overrides the admin hand-off window.
func WithAdminPause(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.AdminPause = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		if now != nil {
			o.Now = now
		}
	}
}

// Pipeline processes one inbound event at a time. Callers serialize events
// per user; the Dispatcher does that.
type Pipeline struct {
	store      Store
	router     Router
	gateway    messaging.Gateway
	summarizer *Summarizer
	opts       Opts
}

// New builds a Pipeline.
func New(st Store, router Router, ai assistant.Backend, gw messaging.Gateway, opts ...Option) *Pipeline {
	o := Opts{AdminPause: DefaultAdminPause, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline{
		store:      st,
		router:     router,
		gateway:    gw,
		summarizer: NewSummarizer(st, ai),
		opts:       o,
	}
}

// Process handles ev end to end. Errors and panics are logged, never returned:
// the webhook has already been acknowledged.
func (p *Pipeline) Process(ctx context.Context, ev models.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Pipeline.Process: recovered from panic", "sender_id", ev.Sender.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := p.process(ctx, ev); err != nil {
		slog.Error("Pipeline.Process: failed", "sender_id", ev.Sender.ID, "error", err)
	}
}

func (p *Pipeline) process(ctx context.Context, ev models.InboundEvent) error {
	now := p.opts.Now()

	if key := ev.DedupKey(); key != "" {
		fresh, err := p.store.RecordInbound(ctx, key, ev.UserID())
		if err != nil {
			return fmt.Errorf("record inbound %s: %w", key, err)
		}
		if !fresh {
			slog.Debug("Pipeline.process: duplicate delivery skipped", "key", key, "sender_id", ev.Sender.ID)
			return nil
		}
	}

	if ev.IsEcho() {
		return p.handleEcho(ctx, ev, now)
	}

	if ev.Postback != nil {
		slog.Info("Pipeline.process: postback received", "sender_id", ev.Sender.ID, "payload", ev.Postback.Payload)
	}

	user, created, err := p.store.GetOrCreateUser(ctx, ev.Sender.ID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if created {
		slog.Info("Pipeline.process: new user", "userID", user.ID)
	}

	if ev.HasText() {
		if _, err := p.store.AppendChatLog(ctx, user.ID, models.SenderUser, ev.Text()); err != nil {
			return fmt.Errorf("log user message: %w", err)
		}
		user.RecordInteraction(now)
		if err := p.store.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("save interaction: %w", err)
		}
	}

	if user.AdminPauseActive(now, p.opts.AdminPause) {
		slog.Info("Pipeline.process: admin is handling the conversation, staying silent", "userID", user.ID)
		return nil
	}

	typing := p.gateway.SendTypingIndicator(ctx, user.ID, true)
	if p.opts.LoadingMessages && flow.CallsBackend(user, ev) {
		p.gateway.SendMessage(ctx, user.ID, persuasion.LoadingMessage())
	}

	stage := user.CurrentStage
	res, err := p.router.Handle(ctx, user, ev)
	if err != nil {
		p.stopTyping(ctx, user.ID, typing)
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	user = res.User
	if err := p.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user after %s: %w", stage, err)
	}
	if user.CurrentStage != stage {
		slog.Info("Pipeline.process: stage changed", "userID", user.ID, "from", stage, "to", user.CurrentStage)
	}

	delivered, err := p.fanOut(ctx, user.ID, res.Messages)
	if delivered == 0 {
		// A successful send clears the indicator; nothing did here.
		p.stopTyping(ctx, user.ID, typing)
	}
	if err != nil {
		return err
	}

	if _, err := p.summarizer.MaybeSummarize(ctx, user); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	return nil
}

// fanOut logs each message before sending it and returns how many were
// delivered. A failed send is logged and the remaining messages still go out.
func (p *Pipeline) fanOut(ctx context.Context, userID string, msgs []string) (int, error) {
	delivered := 0
	for _, msg := range msgs {
		if strings.TrimSpace(msg) == "" {
			continue
		}
		if _, err := p.store.AppendChatLog(ctx, userID, models.SenderSystemAI, msg); err != nil {
			return delivered, fmt.Errorf("log outbound message: %w", err)
		}
		if !p.gateway.SendMessage(ctx, userID, msg) {
			slog.Warn("Pipeline.fanOut: send failed", "userID", userID)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (p *Pipeline) stopTyping(ctx context.Context, userID string, typing bool) {
	if typing {
		p.gateway.SendTypingIndicator(ctx, userID, false)
	}
}

func (p *Pipeline) handleEcho(ctx context.Context, ev models.InboundEvent, now time.Time) error {
	userID := ev.UserID()
	if p.opts.AppID != "" && strconv.FormatInt(ev.Message.AppID, 10) == p.opts.AppID {
		slog.Debug("Pipeline.handleEcho: ignoring self echo", "userID", userID)
		return nil
	}

	user, err := p.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Pipeline.handleEcho: admin reply to unknown user dropped", "userID", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user for admin echo: %w", err)
	}

	if text := ev.Text(); text != "" {
		if _, err := p.store.AppendChatLog(ctx, userID, models.SenderAdminManual, text); err != nil {
			return fmt.Errorf("log admin reply: %w", err)
		}
	}
	t := now
	user.LastAdminReplyAt = &t
	if err := p.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save admin reply time: %w", err)
	}
	slog.Info("Pipeline.handleEcho: admin replied, pausing automation", "userID", userID, "pause", p.opts.AdminPause)
	return nil
}
