package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/premierreview/reviewbot/internal/assistant"
	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/persuasion"
)

const (
	generalCongratsFmt    = "Congratulations, %s! You've completed the mock exam!"
	generalAssistantText  = "I can now act as your General Legal Assistant or Mentor. How can I assist you further today?"
	generalFallbackText   = "I'm sorry, I couldn't process that query at the moment. Can you please rephrase?"
	generalPromptText     = "I'm here to help! What's on your mind?"
	generalHistoryEntries = 5
)

// GeneralBotHandler answers free-form questions once the exam is over.
type GeneralBotHandler struct {
	deps Deps
}

func (h *GeneralBotHandler) Handle(ctx context.Context, user models.User, ev models.InboundEvent) (Result, error) {
	if user.GeneralBotEntry != models.GeneralBotGreeted {
		msgs := []string{fmt.Sprintf(generalCongratsFmt, user.FirstName)}
		msgs = append(msgs, h.deps.Persuasion.Messages(user, persuasion.ExamFinished)...)
		msgs = append(msgs, generalAssistantText)
		user.GeneralBotEntry = models.GeneralBotGreeted
		return Result{User: user, Messages: msgs}, nil
	}

	if !ev.HasText() {
		return Result{User: user, Messages: []string{generalPromptText}}, nil
	}

	logs, err := h.deps.Store.RecentChatLogs(ctx, user.ID, generalHistoryEntries)
	if err != nil {
		return Result{}, fmt.Errorf("load recent history: %w", err)
	}
	reply := h.deps.AI.GenerateChatResponse(ctx,
		assistant.PromptGeneralBotSystem, assistant.PromptGeneralBotUser, models.StageGeneralBot,
		map[string]string{
			"first_name":           user.FirstName,
			"summary":              user.Summary,
			"message_text":         ev.Text(),
			"conversation_history": models.RenderHistory(logs),
		})
	if reply == "" {
		slog.Warn("GeneralBotHandler.Handle: empty chat response, sending fallback", "userID", user.ID)
		return Result{User: user, Messages: []string{generalFallbackText}}, nil
	}
	return Result{User: user, Messages: []string{reply}}, nil
}
