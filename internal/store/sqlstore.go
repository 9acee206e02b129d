package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/premierreview/reviewbot/internal/models"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with '?' placeholders and rebound for the driver.
type sqlStore struct {
	db       *sql.DB
	name     string
	numbered bool
}

const userColumns = `id, first_name, current_stage, onboarding_sub_stage, exam_question_counter,
	general_bot_entry, last_question_id, academic_status, summary, last_interaction_at,
	re_engagement_stage_index, last_re_engagement_sent_at, last_admin_reply_at,
	is_messenger_reachable, is_registered_website_user, created_at, updated_at`

// rebind converts '?' placeholders to $1..$n when the driver needs them.
func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) GetOrCreateUser(ctx context.Context, id string) (models.User, bool, error) {
	if id == "" {
		return models.User{}, false, models.ErrEmptyUserID
	}
	now := time.Now().UTC()
	u := models.NewUser(id, now)
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, current_stage, general_bot_entry, is_messenger_reachable, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		u.ID, u.CurrentStage, u.GeneralBotEntry, true, now, now)
	if err != nil {
		slog.Error(s.name+" GetOrCreateUser insert failed", "error", err, "userID", id)
		return models.User{}, false, fmt.Errorf("failed to create user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to check created user %s: %w", id, err)
	}
	got, err := s.GetUser(ctx, id)
	if err != nil {
		return models.User{}, false, err
	}
	if n > 0 {
		slog.Debug(s.name+" GetOrCreateUser created user", "userID", id)
	}
	return got, n > 0, nil
}

func (s *sqlStore) GetUser(ctx context.Context, id string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+" GetUser failed", "error", err, "userID", id)
		return models.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}

func (s *sqlStore) SaveUser(ctx context.Context, u models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			first_name = excluded.first_name,
			current_stage = excluded.current_stage,
			onboarding_sub_stage = excluded.onboarding_sub_stage,
			exam_question_counter = excluded.exam_question_counter,
			general_bot_entry = excluded.general_bot_entry,
			last_question_id = excluded.last_question_id,
			academic_status = excluded.academic_status,
			summary = excluded.summary,
			last_interaction_at = excluded.last_interaction_at,
			re_engagement_stage_index = excluded.re_engagement_stage_index,
			last_re_engagement_sent_at = excluded.last_re_engagement_sent_at,
			last_admin_reply_at = excluded.last_admin_reply_at,
			is_registered_website_user = excluded.is_registered_website_user,
			updated_at = excluded.updated_at`),
		u.ID, nilIfEmpty(u.FirstName), u.CurrentStage, nilIfEmpty(string(u.OnboardingSubStage)),
		u.ExamQuestionCounter, u.GeneralBotEntry, nullInt64(u.LastQuestionID),
		nilIfEmpty(u.AcademicStatus), u.Summary, nullTime(u.LastInteractionAt),
		u.ReEngagementStageIndex, nullTime(u.LastReEngagementSentAt), nullTime(u.LastAdminReplyAt),
		u.IsMessengerReachable, u.IsRegisteredWebsiteUser, u.CreatedAt.UTC(), now)
	if err != nil {
		slog.Error(s.name+" SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	slog.Debug(s.name+" SaveUser succeeded", "userID", u.ID, "stage", u.CurrentStage)
	return nil
}

func (s *sqlStore) SetReachable(ctx context.Context, id string, reachable bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET is_messenger_reachable = ?, updated_at = ? WHERE id = ?`),
		reachable, time.Now().UTC(), id)
	if err != nil {
		slog.Error(s.name+" SetReachable failed", "error", err, "userID", id)
		return fmt.Errorf("failed to set reachable for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reachable update for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListReEngagementCandidates(ctx context.Context, stages []models.Stage, maxIndex int) ([]models.User, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(stages)), ", ")
	args := make([]any, 0, len(stages)+2)
	for _, st := range stages {
		args = append(args, string(st))
	}
	args = append(args, maxIndex, true)
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users
		WHERE current_stage IN (`+placeholders+`)
		AND last_interaction_at IS NOT NULL
		AND re_engagement_stage_index < ?
		AND is_messenger_reachable = ?
		ORDER BY id`), args...)
	if err != nil {
		slog.Error(s.name+" ListReEngagementCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to query re-engagement candidates: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			slog.Error(s.name+" ListReEngagementCandidates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

func (s *sqlStore) AppendChatLog(ctx context.Context, userID string, sender models.SenderType, content string) (models.ChatLog, error) {
	entry := models.ChatLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		SenderType: sender,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO chat_logs (id, user_id, sender_type, message_content, timestamp) VALUES (?, ?, ?, ?, ?)`),
		entry.ID, entry.UserID, entry.SenderType, entry.Content, entry.Timestamp)
	if err != nil {
		slog.Error(s.name+" AppendChatLog failed", "error", err, "userID", userID, "sender", sender)
		return models.ChatLog{}, fmt.Errorf("failed to append chat log for %s: %w", userID, err)
	}
	return entry, nil
}

func (s *sqlStore) CountChatLogs(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM chat_logs WHERE user_id = ?`), userID).Scan(&n); err != nil {
		slog.Error(s.name+" CountChatLogs failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to count chat logs for %s: %w", userID, err)
	}
	return n, nil
}

func (s *sqlStore) OldestChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error) {
	return s.queryChatLogs(ctx, `SELECT id, user_id, sender_type, message_content, timestamp FROM chat_logs
		WHERE user_id = ? ORDER BY seq ASC LIMIT ?`, userID, n)
}

func (s *sqlStore) RecentChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error) {
	logs, err := s.queryChatLogs(ctx, `SELECT id, user_id, sender_type, message_content, timestamp FROM chat_logs
		WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

func (s *sqlStore) queryChatLogs(ctx context.Context, query string, userID string, n int) ([]models.ChatLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID, n)
	if err != nil {
		slog.Error(s.name+" chat log query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query chat logs for %s: %w", userID, err)
	}
	defer rows.Close()
	var logs []models.ChatLog
	for rows.Next() {
		var l models.ChatLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.SenderType, &l.Content, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat log rows: %w", err)
	}
	return logs, nil
}

func (s *sqlStore) CreateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO questions (category, question_text, expected_answer) VALUES (?, ?, ?) RETURNING id`),
		q.Category, q.QuestionText, q.ExpectedAnswer).Scan(&q.ID)
	if err != nil {
		slog.Error(s.name+" CreateQuestion failed", "error", err, "category", q.Category)
		return models.Question{}, fmt.Errorf("failed to insert question: %w", err)
	}
	return q, nil
}

func (s *sqlStore) GetQuestion(ctx context.Context, id int64) (models.Question, error) {
	var q models.Question
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, category, question_text, expected_answer FROM questions WHERE id = ?`), id).
		Scan(&q.ID, &q.Category, &q.QuestionText, &q.ExpectedAnswer)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Question{}, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+" GetQuestion failed", "error", err, "questionID", id)
		return models.Question{}, fmt.Errorf("failed to get question %d: %w", id, err)
	}
	return q, nil
}

// DeleteQuestion removes a question; users pointing at it get last_question_id cleared.
func (s *sqlStore) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM questions WHERE id = ?`), id)
	if err != nil {
		slog.Error(s.name+" DeleteQuestion failed", "error", err, "questionID", id)
		return fmt.Errorf("failed to delete question %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) RandomQuestion(ctx context.Context) (models.Question, error) {
	var q models.Question
	err := s.db.QueryRowContext(ctx, `SELECT id, category, question_text, expected_answer FROM questions
		WHERE TRIM(expected_answer) <> '' ORDER BY RANDOM() LIMIT 1`).
		Scan(&q.ID, &q.Category, &q.QuestionText, &q.ExpectedAnswer)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Question{}, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+" RandomQuestion failed", "error", err)
		return models.Question{}, fmt.Errorf("failed to draw question: %w", err)
	}
	return q, nil
}

func (s *sqlStore) CreateExamResult(ctx context.Context, r models.ExamResult) (models.ExamResult, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Timestamp = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO exam_results
		(id, user_id, question_id, score, legal_writing_feedback, legal_basis_feedback, application_feedback, conclusion_feedback, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.QuestionID, r.Score, nilIfEmpty(r.LegalWritingFeedback), nilIfEmpty(r.LegalBasisFeedback),
		nilIfEmpty(r.ApplicationFeedback), nilIfEmpty(r.ConclusionFeedback), r.Timestamp)
	if err != nil {
		slog.Error(s.name+" CreateExamResult failed", "error", err, "userID", r.UserID, "questionID", r.QuestionID)
		return models.ExamResult{}, fmt.Errorf("failed to insert exam result: %w", err)
	}
	return r, nil
}

func (s *sqlStore) ExamScoresByCategory(ctx context.Context, userID string) ([]CategoryScore, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT q.category, r.score FROM exam_results r
		JOIN questions q ON q.id = r.question_id WHERE r.user_id = ?`), userID)
	if err != nil {
		slog.Error(s.name+" ExamScoresByCategory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query exam scores for %s: %w", userID, err)
	}
	defer rows.Close()
	var out []CategoryScore
	for rows.Next() {
		var cs CategoryScore
		if err := rows.Scan(&cs.Category, &cs.Score); err != nil {
			return nil, fmt.Errorf("failed to scan exam score row: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exam score rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`), messageID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close "+s.name+" database", "error", err)
	}
	return err
}
