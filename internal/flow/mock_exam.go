package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/persuasion"
	"github.com/premierreview/reviewbot/internal/store"
)

const (
	firstQuestionFmt     = "Alright, %s! Here is your first mock exam question (1/%d):\n\n%s"
	nextQuestionFmt      = "Next question (%d/%d):\n\n%s"
	provideAnswerText    = "Please provide your answer to the last question."
	noQuestionsText      = "I'm sorry, I couldn't find any exam questions at the moment. Please try again later."
	missingQuestionText  = "I'm sorry, I couldn't find the question you were answering. Let's continue in general chat."
	endingEarlyText      = "No more questions are available right now, so we'll end the exam here."
	examCompleteFmt      = "You have completed all %d mock exam questions! Great job!"
	examCorruptText      = "It seems there was an issue with the exam. Moving to general chat."
	feedbackHeader       = "Here's the feedback on your answer:"
	feedbackFallbackText = "I'm sorry, I couldn't generate detailed feedback at this time."
)

var optOutPattern = regexp.MustCompile(`\b(stop|quit|end exam|i'm done|i am done)\b`)

// isOptOut matches the opt-out phrases as whole words, case-insensitively.
func isOptOut(text string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(text), "’", "'")
	return optOutPattern.MatchString(normalized)
}

// MockExamHandler runs the eight question mock exam.
type MockExamHandler struct {
	deps Deps
}

func (h *MockExamHandler) Handle(ctx context.Context, user models.User, ev models.InboundEvent) (Result, error) {
	if isOptOut(ev.Text()) {
		slog.Info("MockExamHandler.Handle: user opted out", "userID", user.ID, "counter", user.ExamQuestionCounter)
		user.EnterGeneralBot()
		return Result{User: user, Messages: h.deps.Persuasion.Messages(user, persuasion.ExamOptOut)}, nil
	}

	switch c := user.ExamQuestionCounter; {
	case c == 0:
		return h.start(ctx, user)
	case c >= 1 && c <= models.ExamLength:
		if !ev.HasText() {
			return Result{User: user, Messages: []string{provideAnswerText}}, nil
		}
		return h.grade(ctx, user, ev.Text())
	default:
		slog.Warn("MockExamHandler.Handle: corrupt exam counter, resetting", "userID", user.ID, "counter", c)
		user.EnterGeneralBot()
		msgs := append([]string{examCorruptText}, h.deps.Persuasion.Messages(user, persuasion.ExamOptOut)...)
		return Result{User: user, Messages: msgs}, nil
	}
}

func (h *MockExamHandler) start(ctx context.Context, user models.User) (Result, error) {
	q, err := h.deps.Store.RandomQuestion(ctx)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("MockExamHandler.start: question bank is empty", "userID", user.ID)
		user.EnterGeneralBot()
		return Result{User: user, Messages: []string{noQuestionsText}}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("draw first question: %w", err)
	}
	user.ExamQuestionCounter = 1
	user.LastQuestionID = &q.ID
	return Result{User: user, Messages: []string{
		fmt.Sprintf(firstQuestionFmt, user.FirstName, models.ExamLength, q.QuestionText),
	}}, nil
}

func (h *MockExamHandler) grade(ctx context.Context, user models.User, answer string) (Result, error) {
	if user.LastQuestionID == nil {
		slog.Warn("MockExamHandler.grade: no question on record", "userID", user.ID)
		user.EnterGeneralBot()
		return Result{User: user, Messages: []string{missingQuestionText}}, nil
	}
	q, err := h.deps.Store.GetQuestion(ctx, *user.LastQuestionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("MockExamHandler.grade: question was deleted", "userID", user.ID, "questionID", *user.LastQuestionID)
		user.EnterGeneralBot()
		return Result{User: user, Messages: []string{missingQuestionText}}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load question %d: %w", *user.LastQuestionID, err)
	}

	fb := h.deps.AI.GradeExam(ctx, q.QuestionText, answer, q.ExpectedAnswer)
	msgs := []string{FormatFeedback(fb)}

	if fb.Score != nil {
		result := models.ExamResult{
			UserID:               user.ID,
			QuestionID:           q.ID,
			Score:                models.ClampScore(*fb.Score),
			LegalWritingFeedback: fb.LegalWritingFeedback,
			LegalBasisFeedback:   fb.LegalBasisFeedback,
			ApplicationFeedback:  fb.ApplicationFeedback,
			ConclusionFeedback:   fb.ConclusionFeedback,
		}
		if _, err := h.deps.Store.CreateExamResult(ctx, result); err != nil {
			return Result{}, fmt.Errorf("save exam result: %w", err)
		}
	}

	if user.ExamQuestionCounter < models.ExamLength {
		next, err := h.deps.Store.RandomQuestion(ctx)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("MockExamHandler.grade: ran out of questions mid-exam", "userID", user.ID, "counter", user.ExamQuestionCounter)
			user.EnterGeneralBot()
			msgs = append(msgs, endingEarlyText)
			msgs = append(msgs, h.deps.Persuasion.Messages(user, persuasion.ExamOptOut)...)
			return Result{User: user, Messages: msgs}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("draw next question: %w", err)
		}
		user.ExamQuestionCounter++
		user.LastQuestionID = &next.ID
		msgs = append(msgs, fmt.Sprintf(nextQuestionFmt, user.ExamQuestionCounter, models.ExamLength, next.QuestionText))
		return Result{User: user, Messages: msgs}, nil
	}

	msgs = append(msgs, fmt.Sprintf(examCompleteFmt, models.ExamLength))
	msgs = append(msgs, h.deps.AI.GenerateStrengthAssessment(ctx, user.ID))
	user.EnterGeneralBot()
	msgs = append(msgs, h.deps.Persuasion.Messages(user, persuasion.ExamFinished)...)
	slog.Info("MockExamHandler.grade: exam completed", "userID", user.ID)
	return Result{User: user, Messages: msgs}, nil
}

// FormatFeedback renders whichever grading fields are present as one message.
func FormatFeedback(fb models.GradeFeedback) string {
	if fb.Empty() {
		return feedbackHeader + "\n" + feedbackFallbackText
	}
	var b strings.Builder
	b.WriteString(feedbackHeader)
	for _, part := range []struct{ label, text string }{
		{"Legal Writing", fb.LegalWritingFeedback},
		{"Legal Basis", fb.LegalBasisFeedback},
		{"Application", fb.ApplicationFeedback},
		{"Conclusion", fb.ConclusionFeedback},
	} {
		if part.text != "" {
			fmt.Fprintf(&b, "\n- %s: %s", part.label, part.text)
		}
	}
	if fb.Score != nil {
		fmt.Fprintf(&b, "\nYour score: %d/100", models.ClampScore(*fb.Score))
	}
	return b.String()
}
