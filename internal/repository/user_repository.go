package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codedrill/codedrill/internal/domain"
)

// UserRepository persists users and their cumulative statistics
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

// GetByID retrieves a user with statistics
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, username, email,
			total_submissions, accepted_submissions, accuracy,
			solved_count, solved_easy, solved_medium, solved_hard,
			attempted_count, points,
			streak_current, streak_longest, streak_last_active,
			created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// SolvedProblemIDs returns the set of problems the user has solved
func (r *UserRepository) SolvedProblemIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT problem_id FROM user_solved_problems
		WHERE user_id = $1
		ORDER BY solved_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ApplyJudgedSubmission folds one judged submission into the user's
// statistics inside a single transaction. The SELECT FOR UPDATE on the
// user row serializes concurrent judges for the same user, which keeps the
// streak and point arithmetic race-free. The returned flag reports whether
// this was the user's first accepted solve for the problem.
func (r *UserRepository) ApplyJudgedSubmission(ctx context.Context, userID, problemID uuid.UUID, accepted bool, difficulty domain.Difficulty, judgedAt time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var stats domain.UserStats
	var lastActive *time.Time
	err = tx.QueryRow(ctx, `
		SELECT total_submissions, accepted_submissions, points,
			solved_easy, solved_medium, solved_hard,
			streak_current, streak_longest, streak_last_active
		FROM users WHERE id = $1
		FOR UPDATE
	`, userID).Scan(
		&stats.TotalSubmissions, &stats.AcceptedSubmissions, &stats.Points,
		&stats.SolvedEasy, &stats.SolvedMedium, &stats.SolvedHard,
		&stats.Streak.Current, &stats.Streak.Longest, &lastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrUserNotFound
		}
		return false, err
	}
	stats.Streak.LastActiveDate = lastActive

	// Every judged submission marks the problem attempted
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_attempted_problems (user_id, problem_id, attempted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, problemID, judgedAt); err != nil {
		return false, err
	}

	stats.TotalSubmissions++
	firstSolve := false

	if accepted {
		stats.AcceptedSubmissions++

		// A successful insert into the solved set is the first-solve signal
		result, err := tx.Exec(ctx, `
			INSERT INTO user_solved_problems (user_id, problem_id, solved_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, userID, problemID, judgedAt)
		if err != nil {
			return false, err
		}
		firstSolve = result.RowsAffected() > 0

		// Only the first accepted solve of a problem is a qualifying
		// activity; re-accepting an already-solved problem leaves the
		// streak untouched.
		if firstSolve {
			stats.Points += difficulty.Points()
			switch difficulty {
			case domain.DifficultyEasy:
				stats.SolvedEasy++
			case domain.DifficultyMedium:
				stats.SolvedMedium++
			case domain.DifficultyHard:
				stats.SolvedHard++
			}
			stats.Streak.Advance(judgedAt)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET
			total_submissions    = $2,
			accepted_submissions = $3,
			accuracy             = $4,
			points               = $5,
			solved_easy          = $6,
			solved_medium        = $7,
			solved_hard          = $8,
			solved_count         = (SELECT COUNT(*) FROM user_solved_problems WHERE user_id = $1),
			attempted_count      = (SELECT COUNT(*) FROM user_attempted_problems WHERE user_id = $1),
			streak_current       = $9,
			streak_longest       = $10,
			streak_last_active   = $11,
			updated_at           = now()
		WHERE id = $1
	`, userID,
		stats.TotalSubmissions, stats.AcceptedSubmissions,
		domain.Accuracy(stats.AcceptedSubmissions, stats.TotalSubmissions),
		stats.Points, stats.SolvedEasy, stats.SolvedMedium, stats.SolvedHard,
		stats.Streak.Current, stats.Streak.Longest, stats.Streak.LastActiveDate,
	)
	if err != nil {
		return false, err
	}

	return firstSolve, tx.Commit(ctx)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var lastActive *time.Time
	err := row.Scan(
		&u.ID, &u.Username, &u.Email,
		&u.Stats.TotalSubmissions, &u.Stats.AcceptedSubmissions, &u.Stats.Accuracy,
		&u.Stats.SolvedCount, &u.Stats.SolvedEasy, &u.Stats.SolvedMedium, &u.Stats.SolvedHard,
		&u.Stats.AttemptedCount, &u.Stats.Points,
		&u.Stats.Streak.Current, &u.Stats.Streak.Longest, &lastActive,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	u.Stats.Streak.LastActiveDate = lastActive
	return &u, nil
}
