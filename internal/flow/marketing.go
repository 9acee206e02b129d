package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/premierreview/reviewbot/internal/models"
)

const (
	marketingUSPFmt      = "Hello %s! Did you know our Review Center offers personalized AI-driven feedback for your practice exams? It's like having a private tutor!"
	marketingOfferText   = "Would you like to test your legal skills with a quick Mock Bar Exam today?"
	marketingConfirmText = "Great! Let's get you started with the Mock Bar Exam."
)

var affirmativeKeywords = []string{"yes", "sure", "start", "exam"}

// MarketingHandler pitches the review center until the user accepts the exam.
type MarketingHandler struct{}

func (h *MarketingHandler) Handle(ctx context.Context, user models.User, ev models.InboundEvent) (Result, error) {
	if isAffirmative(ev.Text()) {
		user.CurrentStage = models.StageMockExam
		slog.Info("MarketingHandler.Handle: exam accepted", "userID", user.ID)
		return Result{User: user, Messages: []string{marketingConfirmText}}, nil
	}
	return Result{User: user, Messages: []string{
		fmt.Sprintf(marketingUSPFmt, user.FirstName),
		marketingOfferText,
	}}, nil
}

// isAffirmative matches the keywords as case-insensitive substrings.
func isAffirmative(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range affirmativeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
