package models

import (
	"strings"
	"time"
)

// Category is a legal subject area of a question.
type Category string

const (
	CategoryCriminalLaw   Category = "CRIMINAL_LAW"
	CategoryCivilLaw      Category = "CIVIL_LAW"
	CategoryRemedialLaw   Category = "REMEDIAL_LAW"
	CategoryPoliticalLaw  Category = "POLITICAL_LAW"
	CategoryLaborLaw      Category = "LABOR_LAW"
	CategoryTaxLaw        Category = "TAX_LAW"
	CategoryCommercialLaw Category = "COMMERCIAL_LAW"
	CategoryEthics        Category = "ETHICS"
)

var categoryLabels = map[Category]string{
	CategoryCriminalLaw:   "Criminal Law",
	CategoryCivilLaw:      "Civil Law",
	CategoryRemedialLaw:   "Remedial Law",
	CategoryPoliticalLaw:  "Political Law",
	CategoryLaborLaw:      "Labor Law",
	CategoryTaxLaw:        "Tax Law",
	CategoryCommercialLaw: "Commercial Law",
	CategoryEthics:        "Legal Ethics",
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable name of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Question is static exam content managed outside the conversation core.
type Question struct {
	ID             int64    `json:"id"`
	Category       Category `json:"category"`
	QuestionText   string   `json:"question_text"`
	ExpectedAnswer string   `json:"expected_answer"`
}

// Gradable reports whether the question can be used in an exam.
func (q Question) Gradable() bool {
	return strings.TrimSpace(q.ExpectedAnswer) != ""
}

// ExamResult is one graded mock-exam answer.
type ExamResult struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	QuestionID           int64     `json:"question_id"`
	Score                int       `json:"score"`
	LegalWritingFeedback string    `json:"legal_writing_feedback,omitempty"`
	LegalBasisFeedback   string    `json:"legal_basis_feedback,omitempty"`
	ApplicationFeedback  string    `json:"application_feedback,omitempty"`
	ConclusionFeedback   string    `json:"conclusion_feedback,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// GradeFeedback is the structured grading answer. Every field is optional;
// Score is nil when the grader returned no usable number.
type GradeFeedback struct {
	LegalWritingFeedback string `json:"legal_writing_feedback,omitempty"`
	LegalBasisFeedback   string `json:"legal_basis_feedback,omitempty"`
	ApplicationFeedback  string `json:"application_feedback,omitempty"`
	ConclusionFeedback   string `json:"conclusion_feedback,omitempty"`
	Score                *int   `json:"score,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Empty reports whether no feedback field or score is present.
func (g GradeFeedback) Empty() bool {
	return g.LegalWritingFeedback == "" && g.LegalBasisFeedback == "" &&
		g.ApplicationFeedback == "" && g.ConclusionFeedback == "" && g.Score == nil
}

// ClampScore forces a score into the 1..100 range.
func ClampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 100 {
		return 100
	}
	return score
}

// ReEngagementRequest carries the context used to write a re-engagement nudge.
type ReEngagementRequest struct {
	UserID              string
	FirstName           string
	Stage               Stage
	Summary             string
	ConversationHistory string
	MessageType         string
}
