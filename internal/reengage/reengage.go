// Package reengage nudges inactive users through a fixed series of
// time-boxed follow-up messages.
package reengage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/premierreview/reviewbot/internal/assistant"
	"github.com/premierreview/reviewbot/internal/messaging"
	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/store"
	"github.com/premierreview/reviewbot/internal/util"
)

// Window is a half-open inactivity range [Start, End).
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Duration) bool {
	return d >= w.Start && d < w.End
}

// DefaultWindows are the inactivity ranges for re-engagement stages 0..3.
var DefaultWindows = []Window{
	{Start: 1 * time.Hour, End: 2 * time.Hour},
	{Start: 5 * time.Hour, End: 6 * time.Hour},
	{Start: 11 * time.Hour, End: 12 * time.Hour},
	{Start: 21 * time.Hour, End: 22 * time.Hour},
}

// DefaultDebounce suppresses a second send shortly after the previous one.
const DefaultDebounce = 30 * time.Minute

// MessageTypes are the flavours a re-engagement message can take.
var MessageTypes = []string{
	"legal_trivia",
	"free_reviewer_offer",
	"legal_maxim",
	"wellness_check",
	"mock_exam_invite",
}

// eligibleStages excludes MOCK_EXAM so exams are never interrupted.
var eligibleStages = []models.Stage{models.StageOnboarding, models.StageMarketing, models.StageGeneralBot}

// Action is what the sweep should do for one user.
type Action int

const (
	ActionNone Action = iota
	ActionSend
	ActionComplete
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionComplete:
		return "complete"
	default:
		return "none"
	}
}

// Decision is the result of ComputeEligibleStage.
type Decision struct {
	Action    Action
	NextIndex int
}

// ComputeEligibleStage decides what to do for a user who has been inactive for
// inactivity and has already received index re-engagement messages. Only the
// next unreached window is considered, so stages cannot be skipped.
func ComputeEligibleStage(inactivity time.Duration, index int, windows []Window) Decision {
	if index < 0 || index >= len(windows) {
		return Decision{Action: ActionNone, NextIndex: index}
	}
	if windows[index].Contains(inactivity) {
		return Decision{Action: ActionSend, NextIndex: index + 1}
	}
	if inactivity >= windows[len(windows)-1].End {
		return Decision{Action: ActionComplete, NextIndex: len(windows)}
	}
	return Decision{Action: ActionNone, NextIndex: index}
}

// Store is the persistence the sweep needs.
type Store interface {
	ListReEngagementCandidates(ctx context.Context, stages []models.Stage, maxIndex int) ([]models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	SaveUser(ctx context.Context, u models.User) error
	AppendChatLog(ctx context.Context, userID string, sender models.SenderType, content string) (models.ChatLog, error)
	RecentChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error)
	LockUser(ctx context.Context, userID string) (unlock func(), err error)
}

// Report summarizes one sweep.
type Report struct {
	Candidates int
	Sent       int
	Completed  int
	Failed     int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWindows overrides the inactivity windows.
func WithWindows(w []Window) Option {
	return func(s *Sweeper) {
		if len(w) > 0 {
			s.windows = w
		}
	}
}

// WithDebounce overrides the minimum gap between two sends.
func WithDebounce(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Sweeper runs the re-engagement sweep.
type Sweeper struct {
	store    Store
	ai       assistant.Backend
	gateway  messaging.Gateway
	windows  []Window
	debounce time.Duration
	now      func() time.Time
}

func NewSweeper(st Store, ai assistant.Backend, gw messaging.Gateway, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    st,
		ai:       ai,
		gateway:  gw,
		windows:  DefaultWindows,
		debounce: DefaultDebounce,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// historyEntries is how much recent conversation the message writer sees.
const historyEntries = 5

// RunSweep evaluates every candidate once. It is safe to re-run at any time:
// eligibility is recomputed from stored state under the user's lock.
func (s *Sweeper) RunSweep(ctx context.Context) (Report, error) {
	var rep Report
	users, err := s.store.ListReEngagementCandidates(ctx, eligibleStages, len(s.windows))
	if err != nil {
		return rep, fmt.Errorf("list candidates: %w", err)
	}
	rep.Candidates = len(users)

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		action, err := s.sweepUser(ctx, u.ID)
		if err != nil {
			rep.Failed++
			slog.Error("Sweeper.RunSweep: user failed", "userID", u.ID, "error", err)
			continue
		}
		switch action {
		case ActionSend:
			rep.Sent++
		case ActionComplete:
			rep.Completed++
		}
	}
	slog.Info("Sweeper.RunSweep: finished", "candidates", rep.Candidates, "sent", rep.Sent, "completed", rep.Completed, "failed", rep.Failed)
	return rep, nil
}

func (s *Sweeper) sweepUser(ctx context.Context, userID string) (Action, error) {
	unlock, err := s.store.LockUser(ctx, userID)
	if err != nil {
		return ActionNone, fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ActionNone, nil
	}
	if err != nil {
		return ActionNone, fmt.Errorf("reload user: %w", err)
	}
	if !s.eligible(u) {
		return ActionNone, nil
	}

	now := s.now()
	if u.LastReEngagementSentAt != nil && now.Sub(*u.LastReEngagementSentAt) < s.debounce {
		slog.Debug("Sweeper.sweepUser: debounced", "userID", u.ID, "index", u.ReEngagementStageIndex)
		return ActionNone, nil
	}

	d := ComputeEligibleStage(now.Sub(*u.LastInteractionAt), u.ReEngagementStageIndex, s.windows)
	switch d.Action {
	case ActionComplete:
		u.ReEngagementStageIndex = d.NextIndex
		if err := s.store.SaveUser(ctx, u); err != nil {
			return ActionNone, fmt.Errorf("mark complete: %w", err)
		}
		slog.Info("Sweeper.sweepUser: all windows missed, marking complete", "userID", u.ID)
		return ActionComplete, nil
	case ActionSend:
		return ActionSend, s.send(ctx, u, d.NextIndex, now)
	}
	return ActionNone, nil
}

func (s *Sweeper) eligible(u models.User) bool {
	if !u.IsMessengerReachable || u.LastInteractionAt == nil || u.ReEngagementStageIndex >= len(s.windows) {
		return false
	}
	for _, st := range eligibleStages {
		if u.CurrentStage == st {
			return true
		}
	}
	return false
}

func (s *Sweeper) send(ctx context.Context, u models.User, next int, now time.Time) error {
	logs, err := s.store.RecentChatLogs(ctx, u.ID, historyEntries)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	msg := s.ai.GenerateReEngagementMessage(ctx, models.ReEngagementRequest{
		UserID:              u.ID,
		FirstName:           u.FirstName,
		Stage:               u.CurrentStage,
		Summary:             u.Summary,
		ConversationHistory: models.RenderHistory(logs),
		MessageType:         util.Pick(MessageTypes),
	})
	if msg == "" {
		msg = assistant.ReEngagementFallback(u.FirstName)
	}

	if !s.gateway.SendMessage(ctx, u.ID, msg) {
		slog.Warn("Sweeper.send: delivery failed, advancing anyway", "userID", u.ID, "index", u.ReEngagementStageIndex)
	}
	if _, err := s.store.AppendChatLog(ctx, u.ID, models.SenderSystemAI, msg); err != nil {
		return fmt.Errorf("log re-engagement: %w", err)
	}

	sent := now
	u.ReEngagementStageIndex = next
	u.LastReEngagementSentAt = &sent
	if err := s.store.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("save re-engagement progress: %w", err)
	}
	slog.Info("Sweeper.send: re-engagement sent", "userID", u.ID, "index", next)
	return nil
}
