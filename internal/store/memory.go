package store

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/premierreview/reviewbot/internal/models"
)

// InMemoryStore keeps everything in process memory. It is used by tests and
// when no database is configured for a throwaway run.
type InMemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	chatLogs  map[string][]models.ChatLog
	questions map[int64]models.Question
	nextQID   int64
	results   []models.ExamResult
	inbound   map[string]string
	locker    *userLocker
	now       func() time.Time
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:     make(map[string]models.User),
		chatLogs:  make(map[string][]models.ChatLog),
		questions: make(map[int64]models.Question),
		inbound:   make(map[string]string),
		locker:    newUserLocker(),
		now:       time.Now,
	}
}

func (s *InMemoryStore) GetOrCreateUser(ctx context.Context, id string) (models.User, bool, error) {
	if id == "" {
		return models.User{}, false, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, false, nil
	}
	u := models.NewUser(id, s.now())
	s.users[id] = u
	slog.Debug("InMemoryStore.GetOrCreateUser: created user", "userID", id)
	return u, true, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemoryStore) SaveUser(ctx context.Context, u models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
		u.IsMessengerReachable = existing.IsMessengerReachable
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) SetReachable(ctx context.Context, id string, reachable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsMessengerReachable = reachable
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *InMemoryStore) ListReEngagementCandidates(ctx context.Context, stages []models.Stage, maxIndex int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users {
		if !slices.Contains(stages, u.CurrentStage) {
			continue
		}
		if u.LastInteractionAt == nil || u.ReEngagementStageIndex >= maxIndex || !u.IsMessengerReachable {
			continue
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b models.User) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *InMemoryStore) AppendChatLog(ctx context.Context, userID string, sender models.SenderType, content string) (models.ChatLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return models.ChatLog{}, ErrNotFound
	}
	entry := models.ChatLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		SenderType: sender,
		Content:    content,
		Timestamp:  s.now(),
	}
	s.chatLogs[userID] = append(s.chatLogs[userID], entry)
	return entry, nil
}

func (s *InMemoryStore) CountChatLogs(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chatLogs[userID]), nil
}

func (s *InMemoryStore) OldestChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.chatLogs[userID]
	if n > len(logs) {
		n = len(logs)
	}
	return slices.Clone(logs[:n]), nil
}

func (s *InMemoryStore) RecentChatLogs(ctx context.Context, userID string, n int) ([]models.ChatLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.chatLogs[userID]
	start := len(logs) - n
	if start < 0 {
		start = 0
	}
	return slices.Clone(logs[start:]), nil
}

func (s *InMemoryStore) CreateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQID++
	q.ID = s.nextQID
	s.questions[q.ID] = q
	return q, nil
}

func (s *InMemoryStore) GetQuestion(ctx context.Context, id int64) (models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return models.Question{}, ErrNotFound
	}
	return q, nil
}

// DeleteQuestion removes a question. Users pointing at it keep a dangling id,
// which handlers treat as a missing question.
func (s *InMemoryStore) DeleteQuestion(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return ErrNotFound
	}
	delete(s.questions, id)
	return nil
}

func (s *InMemoryStore) RandomQuestion(ctx context.Context) (models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pool []models.Question
	for _, q := range s.questions {
		if q.Gradable() {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return models.Question{}, ErrNotFound
	}
	return pool[rand.IntN(len(pool))], nil
}

func (s *InMemoryStore) CreateExamResult(ctx context.Context, r models.ExamResult) (models.ExamResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Timestamp = s.now()
	s.results = append(s.results, r)
	return r, nil
}

func (s *InMemoryStore) ExamScoresByCategory(ctx context.Context, userID string) ([]CategoryScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CategoryScore
	for _, r := range s.results {
		if r.UserID != userID {
			continue
		}
		q, ok := s.questions[r.QuestionID]
		if !ok {
			continue
		}
		out = append(out, CategoryScore{Category: q.Category, Score: r.Score})
	}
	return out, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = userID
	return true, nil
}

func (s *InMemoryStore) LockUser(ctx context.Context, userID string) (func(), error) {
	return s.locker.Lock(ctx, userID)
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
