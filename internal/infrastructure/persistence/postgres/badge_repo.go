package postgres

import (
	"context"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

var _ progress.BadgeRepository = (*BadgeRepository)(nil)

// BadgeRepository implements progress.BadgeRepository for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// List implements progress.BadgeRepository.
func (r *BadgeRepository) List(ctx context.Context, userID shared.UserID) ([]progress.Badge, error) {
	query := `
		SELECT code, awarded_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY awarded_at ASC, code ASC
	`

	rows, err := r.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, mapError("ListBadges", err)
	}
	defer rows.Close()

	var badges []progress.Badge
	for rows.Next() {
		var (
			code      string
			awardedAt time.Time
		)
		if err := rows.Scan(&code, &awardedAt); err != nil {
			return nil, mapError("ListBadges", err)
		}
		badges = append(badges, progress.Badge{Code: progress.BadgeCode(code), AwardedAt: awardedAt.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListBadges", err)
	}
	return badges, nil
}

// Award implements progress.BadgeRepository. All codes are inserted in one
// statement; owned badges keep their original award time.
func (r *BadgeRepository) Award(ctx context.Context, userID shared.UserID, codes []progress.BadgeCode, at time.Time) error {
	if len(codes) == 0 {
		return nil
	}

	values := make([]string, len(codes))
	for i, c := range codes {
		values[i] = string(c)
	}

	query := `
		INSERT INTO user_badges (user_id, code, awarded_at)
		SELECT $1, code, $3 FROM unnest($2::text[]) AS code
		ON CONFLICT (user_id, code) DO NOTHING
	`

	if _, err := r.conn.Exec(ctx, query, userID.String(), values, at.UTC()); err != nil {
		return mapError("AwardBadges", err)
	}
	return nil
}
