package store

import (
	"database/sql"
	"time"

	"github.com/premierreview/reviewbot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser scans a user row selected with userColumns.
func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var firstName, subStage, academic, summary sql.NullString
	var lastQuestion sql.NullInt64
	var lastInteraction, lastReEngagement, lastAdmin sql.NullTime
	err := row.Scan(
		&u.ID, &firstName, &u.CurrentStage, &subStage, &u.ExamQuestionCounter,
		&u.GeneralBotEntry, &lastQuestion, &academic, &summary, &lastInteraction,
		&u.ReEngagementStageIndex, &lastReEngagement, &lastAdmin,
		&u.IsMessengerReachable, &u.IsRegisteredWebsiteUser, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return u, err
	}
	u.FirstName = firstName.String
	u.OnboardingSubStage = models.OnboardingSubStage(subStage.String)
	u.AcademicStatus = academic.String
	u.Summary = summary.String
	if lastQuestion.Valid {
		id := lastQuestion.Int64
		u.LastQuestionID = &id
	}
	u.LastInteractionAt = timePtr(lastInteraction)
	u.LastReEngagementSentAt = timePtr(lastReEngagement)
	u.LastAdminReplyAt = timePtr(lastAdmin)
	return u, nil
}
