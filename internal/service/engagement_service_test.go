package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/ratelimit"
	"github.com/dhofer/postflow-api/internal/social"
	"github.com/dhofer/postflow-api/internal/store"
)

type fakeCounterStore struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ store.EngagementCounterStore = (*fakeCounterStore)(nil)

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: make(map[string]int)}
}

func counterKey(userID uuid.UUID, day time.Time) string {
	return userID.String() + "/" + day.UTC().Format("2006-01-02")
}

func (f *fakeCounterStore) TryConsume(_ context.Context, userID uuid.UUID, day time.Time, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || f.counts[counterKey(userID, day)] >= limit {
		return false, nil
	}
	f.counts[counterKey(userID, day)]++
	return true, nil
}

func (f *fakeCounterStore) Count(_ context.Context, userID uuid.UUID, day time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[counterKey(userID, day)], nil
}

// fakeEngager records posted comments and can be told to fail.
type fakeEngager struct {
	mu       sync.Mutex
	comments []string
	err      error
}

var _ social.Engager = (*fakeEngager)(nil)

func (f *fakeEngager) SearchPosts(context.Context, uuid.UUID, []string, int) ([]social.Post, error) {
	return nil, nil
}

func (f *fakeEngager) CreateComment(_ context.Context, _ uuid.UUID, postRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.comments = append(f.comments, postRef+": "+text)
	return nil
}

func (f *fakeEngager) AuthorPosts(context.Context, uuid.UUID, string, int) ([]social.Post, error) {
	return nil, nil
}

func (f *fakeEngager) posted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comments)
}

func newEngagementService(engager social.Engager, limit int) *EngagementService {
	limiter := ratelimit.NewDailyLimiter(newFakeCounterStore(), limit, nil)
	return NewEngagementService(engager, limiter, discardLogger())
}

func TestEngagementServiceApprove(t *testing.T) {
	t.Parallel()

	t.Run("posts the comment and reports the new budget", func(t *testing.T) {
		t.Parallel()
		engager := &fakeEngager{}
		svc := newEngagementService(engager, 3)

		budget, err := svc.Approve(context.Background(), uuid.New(), "post-1", "great point")
		require.NoError(t, err)
		assert.Equal(t, 1, engager.posted())
		assert.Equal(t, 3, budget.Limit)
		assert.Equal(t, 2, budget.Remaining)
	})

	t.Run("denies once the daily budget is spent", func(t *testing.T) {
		t.Parallel()
		engager := &fakeEngager{}
		svc := newEngagementService(engager, 1)
		userID := uuid.New()

		_, err := svc.Approve(context.Background(), userID, "post-1", "first")
		require.NoError(t, err)

		_, err = svc.Approve(context.Background(), userID, "post-2", "second")
		assert.ErrorIs(t, err, domain.ErrDailyLimitReached)
		assert.Equal(t, 1, engager.posted())
	})

	t.Run("rejects empty input before touching the budget", func(t *testing.T) {
		t.Parallel()
		engager := &fakeEngager{}
		svc := newEngagementService(engager, 1)
		userID := uuid.New()

		_, err := svc.Approve(context.Background(), userID, "", "text")
		assert.ErrorIs(t, err, domain.ErrValidation)

		budget, err := svc.Budget(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 1, budget.Remaining)
	})

	t.Run("a failed post still consumes the budget unit", func(t *testing.T) {
		t.Parallel()
		engager := &fakeEngager{err: social.ErrRejected}
		svc := newEngagementService(engager, 2)
		userID := uuid.New()

		_, err := svc.Approve(context.Background(), userID, "post-1", "text")
		require.Error(t, err)

		budget, err := svc.Budget(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 1, budget.Remaining)
	})
}
