package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/premierreview/reviewbot/internal/assistant"
	"github.com/premierreview/reviewbot/internal/models"
)

// Sliding window sizes. Once a user has more than SummaryThreshold log rows,
// the oldest SummaryChunk are folded into the rolling summary.
const (
	SummaryThreshold = 20
	SummaryChunk     = 14
)

// SummaryStore is the persistence the summarizer needs.
type SummaryStore interface {
	CountChatLogs(ctx context.Context, userID string) (int, error)
	OldestChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error)
	SaveUser(ctx context.Context, u models.User) error
}

// Summarizer maintains User.Summary.
type Summarizer struct {
	store SummaryStore
	ai    assistant.Backend
}

func NewSummarizer(st SummaryStore, ai assistant.Backend) *Summarizer {
	return &Summarizer{store: st, ai: ai}
}

// MaybeSummarize folds the oldest history into user.Summary when the log has
// grown past the threshold. Log rows are kept. An empty model answer leaves
// the summary unchanged.
func (s *Summarizer) MaybeSummarize(ctx context.Context, user models.User) (models.User, error) {
	n, err := s.store.CountChatLogs(ctx, user.ID)
	if err != nil {
		return user, fmt.Errorf("count chat logs: %w", err)
	}
	if n <= SummaryThreshold {
		return user, nil
	}

	logs, err := s.store.OldestChatLogs(ctx, user.ID, SummaryChunk)
	if err != nil {
		return user, fmt.Errorf("load oldest chat logs: %w", err)
	}
	summary := s.ai.SummarizeConversation(ctx, user.ID, models.RenderHistory(logs), user.Summary)
	if summary == "" {
		slog.Warn("Summarizer.MaybeSummarize: empty summary, keeping previous", "userID", user.ID)
		return user, nil
	}

	user.Summary = models.TruncateSummary(summary)
	if err := s.store.SaveUser(ctx, user); err != nil {
		return user, fmt.Errorf("save summary: %w", err)
	}
	slog.Debug("Summarizer.MaybeSummarize: summary updated", "userID", user.ID, "logCount", n)
	return user, nil
}
