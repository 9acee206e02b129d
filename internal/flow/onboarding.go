package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/premierreview/reviewbot/internal/models"
)

const (
	onboardingIntroText = "Hello! I'm the Law Review Center AI Chatbot, your personal study assistant for the bar exam. 📚 What should I call you?"
	onboardingReAskText = "Sorry, I didn't quite catch your name. What should I call you?"
	onboardingReadyFmt  = "Nice to meet you, %s! 🎉 Let's get you ready for the bar exam."
	welcomeBackFmt      = "Welcome back, %s! Let's continue your review."
)

// OnboardingHandler collects the user's first name.
type OnboardingHandler struct {
	deps Deps
}

func (h *OnboardingHandler) Handle(ctx context.Context, user models.User, ev models.InboundEvent) (Result, error) {
	if user.HasName() {
		user.CurrentStage = models.StageMarketing
		user.OnboardingSubStage = models.SubStageNone
		return Result{User: user, Messages: []string{fmt.Sprintf(welcomeBackFmt, user.FirstName)}}, nil
	}

	if user.OnboardingSubStage != models.SubStageAskName {
		user.OnboardingSubStage = models.SubStageAskName
		return Result{User: user, Messages: []string{onboardingIntroText}}, nil
	}

	if !ev.HasText() {
		return Result{User: user, Messages: []string{onboardingReAskText}}, nil
	}

	name, ok := h.deps.AI.ExtractName(ctx, ev.Text())
	if !ok {
		slog.Debug("OnboardingHandler.Handle: no name recognized", "userID", user.ID)
		return Result{User: user, Messages: []string{onboardingReAskText}}, nil
	}

	user.FirstName = name
	user.OnboardingSubStage = models.SubStageNone
	user.CurrentStage = models.StageMarketing
	slog.Info("OnboardingHandler.Handle: name captured", "userID", user.ID, "stage", user.CurrentStage)
	return Result{User: user, Messages: []string{fmt.Sprintf(onboardingReadyFmt, name)}}, nil
}
