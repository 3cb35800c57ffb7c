package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

var _ progress.Repository = (*ProgressRepository)(nil)

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `user_id, xp, level, streak, last_active_date, updated_at`

// Get implements progress.Repository.
func (r *ProgressRepository) Get(ctx context.Context, userID shared.UserID) (progress.UserProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_progress WHERE user_id = $1`

	p, err := scanProgress(r.conn.QueryRow(ctx, query, userID.String()))
	if IsNoRows(err) {
		return progress.UserProgress{}, shared.ErrProgressNotFound
	}
	if err != nil {
		return progress.UserProgress{}, mapError("Get", err)
	}
	return p, nil
}

// Set implements progress.Repository.
func (r *ProgressRepository) Set(ctx context.Context, p progress.UserProgress) error {
	query := `
		INSERT INTO user_progress (` + progressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			streak = EXCLUDED.streak,
			last_active_date = EXCLUDED.last_active_date,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query, progressArgs(p)...)
	if err != nil {
		return mapError("Set", err)
	}
	return nil
}

// CompareAndSet implements progress.Repository. The first write of a user is
// an insert that loses to any concurrent insert; later writes are updates
// guarded by the previous updated_at.
func (r *ProgressRepository) CompareAndSet(ctx context.Context, next progress.UserProgress, expectedUpdatedAt *time.Time) error {
	var (
		query string
		args  = progressArgs(next)
	)

	if expectedUpdatedAt == nil {
		query = `
			INSERT INTO user_progress (` + progressColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO NOTHING
		`
	} else {
		query = `
			UPDATE user_progress SET
				xp = $2,
				level = $3,
				streak = $4,
				last_active_date = $5,
				updated_at = $6
			WHERE user_id = $1 AND updated_at = $7
		`
		args = append(args, *expectedUpdatedAt)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return mapError("CompareAndSet", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgressConflict
	}
	return nil
}

// Top implements progress.Repository.
func (r *ProgressRepository) Top(ctx context.Context, limit int) ([]progress.UserProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM user_progress
		ORDER BY xp DESC, user_id ASC
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, mapError("Top", err)
	}
	defer rows.Close()

	result := make([]progress.UserProgress, 0, limit)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, mapError("Top", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("Top", err)
	}
	return result, nil
}

// Count returns the number of stored records.
func (r *ProgressRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM user_progress`).Scan(&n); err != nil {
		return 0, mapError("Count", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func progressArgs(p progress.UserProgress) []interface{} {
	return []interface{}{
		p.UserID.String(),
		p.XP,
		p.Level,
		p.Streak,
		p.LastActiveDate,
		p.UpdatedAt.UTC(),
	}
}

func scanProgress(row pgx.Row) (progress.UserProgress, error) {
	var (
		p          progress.UserProgress
		userID     string
		lastActive *time.Time
		updatedAt  time.Time
	)

	if err := row.Scan(&userID, &p.XP, &p.Level, &p.Streak, &lastActive, &updatedAt); err != nil {
		return progress.UserProgress{}, err
	}

	p.UserID = shared.UserID(userID)
	p.UpdatedAt = updatedAt.UTC()
	if lastActive != nil {
		d := time.Date(lastActive.Year(), lastActive.Month(), lastActive.Day(), 0, 0, 0, 0, time.UTC)
		p.LastActiveDate = &d
	}
	return p, nil
}

// mapError translates driver errors into domain error kinds.
func mapError(op string, err error) error {
	switch {
	case IsInsufficientPrivilege(err):
		return shared.WrapError("progress", op, shared.ErrForbidden, "write rejected by database policy", err)
	case IsCheckViolation(err):
		return shared.WrapError("progress", op, shared.ErrValidation, "record violates a database constraint", err)
	case IsUniqueViolation(err):
		return shared.WrapError("progress", op, shared.ErrAlreadyExists, "record already exists", err)
	default:
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
}
