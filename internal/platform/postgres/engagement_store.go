package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/platform/logger"
	"github.com/dhofer/postflow-api/internal/store"
)

// PostgresEngagementCounterStore implements store.EngagementCounterStore
// using a single-row-per-day counter table.
type PostgresEngagementCounterStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresEngagementCounterStore creates a new PostgreSQL implementation
// of the EngagementCounterStore interface.
func NewPostgresEngagementCounterStore(db store.DBTX, logger *slog.Logger) *PostgresEngagementCounterStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresEngagementCounterStore{
		db:     db,
		logger: logger.With(slog.String("component", "engagement_counter_store")),
	}
}

// Ensure PostgresEngagementCounterStore implements store.EngagementCounterStore
var _ store.EngagementCounterStore = (*PostgresEngagementCounterStore)(nil)

// TryConsume implements store.EngagementCounterStore.TryConsume.
// Check and increment are one statement: the upsert's WHERE clause only
// lets the increment through while the count is below the limit, so two
// concurrent callers at the boundary cannot both succeed.
func (s *PostgresEngagementCounterStore) TryConsume(
	ctx context.Context,
	userID uuid.UUID,
	day time.Time,
	limit int,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// The insert branch of the upsert unconditionally writes count=1,
	// so a zero limit has to be rejected before touching the table.
	if limit <= 0 {
		return false, nil
	}

	query := `
		INSERT INTO engagement_counters (user_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, day) DO UPDATE
		SET count = engagement_counters.count + 1
		WHERE engagement_counters.count < $3
	`

	result, err := s.db.ExecContext(ctx, query, userID, day.UTC().Format("2006-01-02"), limit)
	if err != nil {
		log.Error("failed to consume engagement budget",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Count implements store.EngagementCounterStore.Count
func (s *PostgresEngagementCounterStore) Count(
	ctx context.Context,
	userID uuid.UUID,
	day time.Time,
) (int, error) {
	query := `
		SELECT COALESCE(
			(SELECT count FROM engagement_counters WHERE user_id = $1 AND day = $2),
			0
		)
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, day.UTC().Format("2006-01-02")).Scan(&count)
	if err != nil {
		return 0, MapError(err)
	}

	return count, nil
}
