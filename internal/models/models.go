// Package models defines the core data structures for reviewbot.
//
// It includes the conversation user, chat history, exam content and inbound
// Messenger events, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Stage is the top-level conversation phase that decides which handler runs.
type Stage string

const (
	StageOnboarding Stage = "ONBOARDING"
	StageMarketing  Stage = "MARKETING"
	StageMockExam   Stage = "MOCK_EXAM"
	StageGeneralBot Stage = "GENERAL_BOT"
)

// IsValid reports whether s is one of the four known stages.
func (s Stage) IsValid() bool {
	switch s {
	case StageOnboarding, StageMarketing, StageMockExam, StageGeneralBot:
		return true
	default:
		return false
	}
}

// OnboardingSubStage tracks which piece of information onboarding is collecting.
type OnboardingSubStage string

const (
	SubStageNone              OnboardingSubStage = ""
	SubStageAskName           OnboardingSubStage = "ASK_NAME"
	SubStageAskAcademicStatus OnboardingSubStage = "ASK_ACADEMIC_STATUS"
)

// GeneralBotEntry records whether the general assistant greeting has been sent
// since the user last entered the GENERAL_BOT stage.
type GeneralBotEntry string

const (
	GeneralBotFresh   GeneralBotEntry = "FRESH"
	GeneralBotGreeted GeneralBotEntry = "GREETED"
)

// Exam and summary limits.
const (
	// ExamLength is the number of questions in one mock exam.
	ExamLength = 8
	// MaxSummaryLength is the rune cap for User.Summary.
	MaxSummaryLength = 1000
	// TotalReEngagementStages is the number of re-engagement windows.
	TotalReEngagementStages = 4
)

// Error variables for validation failures.
var (
	ErrEmptyUserID            = errors.New("user id cannot be empty")
	ErrInvalidStage           = errors.New("invalid conversation stage")
	ErrSubStageOutsideOnboard = errors.New("onboarding sub-stage set outside ONBOARDING")
	ErrCounterOutOfRange      = errors.New("exam question counter out of range")
	ErrSummaryTooLong         = errors.New("summary exceeds maximum length")
)

// User is one record per remote chat identity. ID is the Messenger page-scoped id.
type User struct {
	ID                      string             `json:"id"`
	FirstName               string             `json:"first_name,omitempty"`
	CurrentStage            Stage              `json:"current_stage"`
	OnboardingSubStage      OnboardingSubStage `json:"onboarding_sub_stage,omitempty"`
	ExamQuestionCounter     int                `json:"exam_question_counter"`
	GeneralBotEntry         GeneralBotEntry    `json:"general_bot_entry"`
	LastQuestionID          *int64             `json:"last_question_id,omitempty"`
	AcademicStatus          string             `json:"academic_status,omitempty"`
	Summary                 string             `json:"summary,omitempty"`
	LastInteractionAt       *time.Time         `json:"last_interaction_at,omitempty"`
	ReEngagementStageIndex  int                `json:"re_engagement_stage_index"`
	LastReEngagementSentAt  *time.Time         `json:"last_re_engagement_sent_at,omitempty"`
	LastAdminReplyAt        *time.Time         `json:"last_admin_reply_at,omitempty"`
	IsMessengerReachable    bool               `json:"is_messenger_reachable"`
	IsRegisteredWebsiteUser bool               `json:"is_registered_website_user"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// NewUser returns a first-contact user in the ONBOARDING stage.
func NewUser(id string, now time.Time) User {
	return User{
		ID:                   id,
		CurrentStage:         StageOnboarding,
		GeneralBotEntry:      GeneralBotFresh,
		IsMessengerReachable: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// HasName reports whether the user's first name has been captured.
func (u User) HasName() bool {
	return u.FirstName != ""
}

// Validate checks the structural invariants of a user record.
func (u User) Validate() error {
	if u.ID == "" {
		return ErrEmptyUserID
	}
	if !u.CurrentStage.IsValid() {
		return ErrInvalidStage
	}
	if u.OnboardingSubStage != SubStageNone && u.CurrentStage != StageOnboarding {
		return ErrSubStageOutsideOnboard
	}
	if u.ExamQuestionCounter < 0 || u.ExamQuestionCounter > ExamLength {
		return ErrCounterOutOfRange
	}
	if len([]rune(u.Summary)) > MaxSummaryLength {
		return ErrSummaryTooLong
	}
	return nil
}

// EnterGeneralBot moves the user out of the exam into the general assistant,
// clearing exam progress so the greeting is sent on the next dispatch.
func (u *User) EnterGeneralBot() {
	u.CurrentStage = StageGeneralBot
	u.ExamQuestionCounter = 0
	u.LastQuestionID = nil
	u.GeneralBotEntry = GeneralBotFresh
}

// RecordInteraction marks genuine inbound activity. Any pending re-engagement
// progress is cancelled.
func (u *User) RecordInteraction(now time.Time) {
	t := now
	u.LastInteractionAt = &t
	u.ReEngagementStageIndex = 0
	u.LastReEngagementSentAt = nil
}

// AdminPauseActive reports whether a human admin replied less than window ago.
func (u User) AdminPauseActive(now time.Time, window time.Duration) bool {
	if u.LastAdminReplyAt == nil {
		return false
	}
	return now.Sub(*u.LastAdminReplyAt) < window
}

// TruncateSummary caps s at MaxSummaryLength runes, replacing the tail with an
// ellipsis when it is cut.
func TruncateSummary(s string) string {
	r := []rune(s)
	if len(r) <= MaxSummaryLength {
		return s
	}
	return string(r[:MaxSummaryLength-1]) + "…"
}
