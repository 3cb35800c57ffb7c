package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
-- One row per user. updated_at doubles as the optimistic-lock version.
CREATE TABLE IF NOT EXISTS user_progress (
    user_id          VARCHAR(128) PRIMARY KEY,
    xp               BIGINT NOT NULL DEFAULT 0,
    level            INTEGER NOT NULL DEFAULT 1,
    streak           INTEGER NOT NULL DEFAULT 0,
    last_active_date DATE NULL,
    updated_at       TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_streak CHECK (streak >= 0)
);

-- Leaderboard reads: XP descending, ties by user.
CREATE INDEX IF NOT EXISTS idx_user_progress_xp ON user_progress(xp DESC, user_id ASC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE USER BADGES
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
CREATE TABLE IF NOT EXISTS user_badges (
    user_id    VARCHAR(128) NOT NULL,
    code       VARCHAR(50) NOT NULL,
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, code)
);

CREATE INDEX IF NOT EXISTS idx_user_badges_user ON user_badges(user_id, awarded_at);
`
