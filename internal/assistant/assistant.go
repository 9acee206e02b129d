// Package assistant implements the language-model capabilities the conversation
// core relies on: name extraction, exam grading, strength assessment,
// summarization, general chat and re-engagement copy.
//
// No Backend method returns an error. Failures are logged and converted to a
// deterministic fallback so callers never have to handle them.
package assistant

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/store"
)

// Fallback texts.
const (
	NoExamResultsText       = "You haven't answered any mock exam questions yet. Take the mock exam first so I can assess your strengths! 📝"
	AssessmentFallbackText  = "Great effort on finishing the mock exam! Keep practicing consistently and your strengths will keep growing. ✨"
	GradeUnavailableText    = "I'm sorry, I couldn't grade the answer at the moment."
	GradeUnreadableText     = "I received an unreadable response from the grading system."
	reEngagementFallbackFmt = "Hi %s! 👋 We miss you at the Review Center. Ready to pick up your bar exam preparation where you left off? ✨"
	noNameMarker            = "[NO_NAME]"
)

// Backend is the AI capability consumed by the stage handlers, the pipeline
// and the re-engagement sweep.
type Backend interface {
	// ExtractName returns the first name found in text.
	ExtractName(ctx context.Context, text string) (string, bool)
	GradeExam(ctx context.Context, question, answer, expected string) models.GradeFeedback
	GenerateStrengthAssessment(ctx context.Context, userID string) string
	// SummarizeConversation returns "" when no summary could be produced.
	SummarizeConversation(ctx context.Context, userID, chunk, existingSummary string) string
	// GenerateChatResponse returns "" on failure.
	GenerateChatResponse(ctx context.Context, systemKey, userKey string, category models.Stage, vars map[string]string) string
	GenerateReEngagementMessage(ctx context.Context, req models.ReEngagementRequest) string
}

// Generator produces text from a system and user prompt. *genai.Client
// satisfies it.
type Generator interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ScoreSource provides a user's exam scores tagged by category.
type ScoreSource interface {
	ExamScoresByCategory(ctx context.Context, userID string) ([]store.CategoryScore, error)
}

// LLMBackend implements Backend on top of a Generator.
type LLMBackend struct {
	chat   Generator
	grader Generator
	scores ScoreSource
}

// Compile-time check that LLMBackend implements Backend.
var _ Backend = (*LLMBackend)(nil)

// Option configures an LLMBackend.
type Option func(*LLMBackend)

// WithGrader uses a separate generator, usually a stronger model, for grading.
func WithGrader(g Generator) Option {
	return func(b *LLMBackend) {
		if g != nil {
			b.grader = g
		}
	}
}

// NewLLMBackend creates a backend that uses chat for every call unless
// overridden by options.
func NewLLMBackend(chat Generator, scores ScoreSource, opts ...Option) *LLMBackend {
	b := &LLMBackend{chat: chat, grader: chat, scores: scores}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *LLMBackend) ExtractName(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	out, err := b.chat.GeneratePrompt(ctx, nameExtractionSystemPrompt, render(nameExtractionUserPrompt, map[string]string{"message_text": text}))
	if err != nil {
		slog.Error("LLMBackend.ExtractName: generation failed", "error", err)
		return "", false
	}
	name := cleanName(out)
	if name == "" {
		slog.Debug("LLMBackend.ExtractName: no name found")
		return "", false
	}
	return name, true
}

// cleanName strips quotes and punctuation from a model answer and rejects the
// no-name marker.
func cleanName(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(strings.ToUpper(s), noNameMarker) {
		return ""
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	return strings.Trim(s, ".,!?;:'\"`()[]")
}

func (b *LLMBackend) GradeExam(ctx context.Context, question, answer, expected string) models.GradeFeedback {
	prompt := render(gradeUserPrompt, map[string]string{
		"question_text":   question,
		"user_answer":     answer,
		"expected_answer": expected,
	})
	out, err := b.grader.GenerateJSON(ctx, gradeSystemPrompt, prompt)
	if err != nil {
		slog.Error("LLMBackend.GradeExam: generation failed", "error", err)
		return models.GradeFeedback{Error: GradeUnavailableText}
	}
	fb, err := ParseGradeFeedback(out)
	if err != nil {
		slog.Error("LLMBackend.GradeExam: unreadable grading response", "error", err, "raw", out)
		return models.GradeFeedback{Error: GradeUnreadableText}
	}
	return fb
}

// ParseGradeFeedback decodes a grading JSON object. Missing keys are left
// empty; a score is accepted as a number or a numeric string.
func ParseGradeFeedback(raw string) (models.GradeFeedback, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &m); err != nil {
		return models.GradeFeedback{}, fmt.Errorf("failed to decode grading JSON: %w", err)
	}
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	fb := models.GradeFeedback{
		LegalWritingFeedback: str("legal_writing_feedback"),
		LegalBasisFeedback:   str("legal_basis_feedback"),
		ApplicationFeedback:  str("application_feedback"),
		ConclusionFeedback:   str("conclusion_feedback"),
	}
	switch v := m["score"].(type) {
	case float64:
		s := int(math.Round(v))
		fb.Score = &s
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			fb.Score = &n
		}
	}
	return fb, nil
}

func (b *LLMBackend) GenerateStrengthAssessment(ctx context.Context, userID string) string {
	scores, err := b.scores.ExamScoresByCategory(ctx, userID)
	if err != nil {
		slog.Error("LLMBackend.GenerateStrengthAssessment: failed to load scores", "error", err, "userID", userID)
		return AssessmentFallbackText
	}
	if len(scores) == 0 {
		return NoExamResultsText
	}
	prompt := render(assessmentUserPrompt, map[string]string{"categorized_scores": FormatCategoryAverages(scores)})
	out, err := b.chat.GeneratePrompt(ctx, assessmentSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Error("LLMBackend.GenerateStrengthAssessment: generation failed", "error", err, "userID", userID)
		return AssessmentFallbackText
	}
	return strings.TrimSpace(out)
}

// FormatCategoryAverages renders "- Criminal Law (Avg Score: 85)" lines, one per
// category, sorted by label.
func FormatCategoryAverages(scores []store.CategoryScore) string {
	type agg struct {
		sum, n int
	}
	byCat := make(map[models.Category]*agg)
	for _, s := range scores {
		a, ok := byCat[s.Category]
		if !ok {
			a = &agg{}
			byCat[s.Category] = a
		}
		a.sum += s.Score
		a.n++
	}
	cats := make([]models.Category, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	slices.SortFunc(cats, func(a, b models.Category) int { return cmp.Compare(a.Label(), b.Label()) })
	lines := make([]string, 0, len(cats))
	for _, c := range cats {
		a := byCat[c]
		avg := int(math.Round(float64(a.sum) / float64(a.n)))
		lines = append(lines, fmt.Sprintf("- %s (Avg Score: %d)", c.Label(), avg))
	}
	return strings.Join(lines, "\n")
}

func (b *LLMBackend) SummarizeConversation(ctx context.Context, userID, chunk, existingSummary string) string {
	var prompt string
	if strings.TrimSpace(existingSummary) != "" {
		prompt = render(summarizeWithExistingPrompt, map[string]string{"existing_summary": existingSummary, "conversation_chunk": chunk})
	} else {
		prompt = render(summarizeFreshPrompt, map[string]string{"conversation_chunk": chunk})
	}
	out, err := b.chat.GeneratePrompt(ctx, summarizeSystemPrompt, prompt)
	if err != nil {
		slog.Error("LLMBackend.SummarizeConversation: generation failed", "error", err, "userID", userID)
		return ""
	}
	return strings.TrimSpace(out)
}

func (b *LLMBackend) GenerateChatResponse(ctx context.Context, systemKey, userKey string, category models.Stage, vars map[string]string) string {
	system, ok := chatPrompts[systemKey]
	if !ok {
		slog.Error("LLMBackend.GenerateChatResponse: unknown system prompt", "key", systemKey, "category", category)
		return ""
	}
	user, ok := chatPrompts[userKey]
	if !ok {
		slog.Error("LLMBackend.GenerateChatResponse: unknown user prompt", "key", userKey, "category", category)
		return ""
	}
	out, err := b.chat.GeneratePrompt(ctx, system, render(user, vars))
	if err != nil {
		slog.Error("LLMBackend.GenerateChatResponse: generation failed", "error", err, "category", category)
		return ""
	}
	return strings.TrimSpace(out)
}

func (b *LLMBackend) GenerateReEngagementMessage(ctx context.Context, req models.ReEngagementRequest) string {
	prompt := render(reEngagementUserPrompt, map[string]string{
		"first_name":           displayName(req.FirstName),
		"current_stage":        string(req.Stage),
		"summary":              req.Summary,
		"message_type":         req.MessageType,
		"conversation_history": req.ConversationHistory,
	})
	out, err := b.chat.GeneratePrompt(ctx, reEngagementSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Error("LLMBackend.GenerateReEngagementMessage: generation failed", "error", err, "userID", req.UserID)
		return ReEngagementFallback(req.FirstName)
	}
	return strings.TrimSpace(out)
}

// ReEngagementFallback is the fixed nudge used when generation fails.
func ReEngagementFallback(firstName string) string {
	return fmt.Sprintf(reEngagementFallbackFmt, displayName(firstName))
}

func displayName(firstName string) string {
	if firstName == "" {
		return "there"
	}
	return firstName
}
