// Package store provides storage backends for reviewbot.
//
// It includes an in-memory store plus SQLite and PostgreSQL backends for users,
// chat history, questions and exam results.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/premierreview/reviewbot/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CategoryScore is one exam score tagged with its question's category.
type CategoryScore struct {
	Category models.Category
	Score    int
}

// Store is the persistence interface used by the pipeline, the handlers and the
// re-engagement sweep.
type Store interface {
	// GetOrCreateUser returns the user with id, inserting a fresh ONBOARDING
	// record on first contact. created reports whether the row was inserted.
	GetOrCreateUser(ctx context.Context, id string) (user models.User, created bool, err error)
	GetUser(ctx context.Context, id string) (models.User, error)
	// SaveUser upserts u. On update the stored reachability flag is kept;
	// only SetReachable changes it.
	SaveUser(ctx context.Context, u models.User) error
	SetReachable(ctx context.Context, id string, reachable bool) error
	// ListReEngagementCandidates returns reachable users in one of stages with a
	// recorded interaction and a stage index below maxIndex.
	ListReEngagementCandidates(ctx context.Context, stages []models.Stage, maxIndex int) ([]models.User, error)

	AppendChatLog(ctx context.Context, userID string, sender models.SenderType, content string) (models.ChatLog, error)
	CountChatLogs(ctx context.Context, userID string) (int, error)
	// OldestChatLogs returns up to n entries, oldest first.
	OldestChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error)
	// RecentChatLogs returns the n most recent entries, oldest first.
	RecentChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error)

	CreateQuestion(ctx context.Context, q models.Question) (models.Question, error)
	GetQuestion(ctx context.Context, id int64) (models.Question, error)
	// RandomQuestion draws uniformly among questions with a non-empty expected
	// answer. ErrNotFound when there are none.
	RandomQuestion(ctx context.Context) (models.Question, error)

	CreateExamResult(ctx context.Context, r models.ExamResult) (models.ExamResult, error)
	ExamScoresByCategory(ctx context.Context, userID string) ([]CategoryScore, error)

	// RecordInbound registers a Messenger message id. It returns false when the
	// id was seen before.
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)

	// LockUser blocks until the caller holds the per-user processing lock.
	LockUser(ctx context.Context, userID string) (unlock func(), err error)

	Ping(ctx context.Context) error
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}
