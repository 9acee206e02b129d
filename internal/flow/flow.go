// Package flow implements the conversation stage handlers and the registry
// that selects one by the user's current stage.
//
// Handlers are pure with respect to the user record: they receive a copy,
// return the mutated copy and the ordered outbound messages, and leave saving,
// chat logging and sending to the caller.
package flow

import (
	"context"
	"log/slog"

	"github.com/premierreview/reviewbot/internal/assistant"
	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/persuasion"
)

// Result is what a handler produced for one inbound event.
type Result struct {
	User     models.User
	Messages []string
}

// Handler runs the logic of one conversation stage.
type Handler interface {
	Handle(ctx context.Context, user models.User, ev models.InboundEvent) (Result, error)
}

// ExamStore is the part of the store the handlers read and write.
type ExamStore interface {
	RandomQuestion(ctx context.Context) (models.Question, error)
	GetQuestion(ctx context.Context, id int64) (models.Question, error)
	CreateExamResult(ctx context.Context, r models.ExamResult) (models.ExamResult, error)
	RecentChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error)
}

// Persuader renders registration nudges. *persuasion.Generator satisfies it.
type Persuader interface {
	Messages(user models.User, key persuasion.ContextKey) []string
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Store      ExamStore
	AI         assistant.Backend
	Persuasion Persuader
}

// Registry maps stages to handlers.
type Registry struct {
	handlers map[models.Stage]Handler
	fallback Handler
}

// NewRegistry returns a registry with the four stage handlers registered.
// Unknown stages fall back to the general bot.
func NewRegistry(deps Deps) *Registry {
	general := &GeneralBotHandler{deps: deps}
	r := &Registry{
		handlers: make(map[models.Stage]Handler),
		fallback: general,
	}
	r.Register(models.StageOnboarding, &OnboardingHandler{deps: deps})
	r.Register(models.StageMarketing, &MarketingHandler{})
	r.Register(models.StageMockExam, &MockExamHandler{deps: deps})
	r.Register(models.StageGeneralBot, general)
	return r
}

// Register associates a stage with a handler, replacing any previous one.
func (r *Registry) Register(stage models.Stage, h Handler) {
	r.handlers[stage] = h
}

// Get returns the handler for stage, or the general bot for unknown stages.
func (r *Registry) Get(stage models.Stage) Handler {
	if h, ok := r.handlers[stage]; ok {
		return h
	}
	slog.Warn("Registry.Get: no handler for stage, using general bot", "stage", stage)
	return r.fallback
}

// Handle dispatches ev to the handler of the user's current stage.
func (r *Registry) Handle(ctx context.Context, user models.User, ev models.InboundEvent) (Result, error) {
	slog.Debug("Registry.Handle: dispatching", "userID", user.ID, "stage", user.CurrentStage)
	return r.Get(user.CurrentStage).Handle(ctx, user, ev)
}

// CallsBackend reports whether handling ev will wait on the language model,
// which is when a loading message is worth sending.
func CallsBackend(user models.User, ev models.InboundEvent) bool {
	if !ev.HasText() {
		return false
	}
	switch user.CurrentStage {
	case models.StageMockExam:
		return user.ExamQuestionCounter >= 1 && user.ExamQuestionCounter <= models.ExamLength && !isOptOut(ev.Text())
	case models.StageGeneralBot:
		return user.GeneralBotEntry == models.GeneralBotGreeted
	}
	return false
}
