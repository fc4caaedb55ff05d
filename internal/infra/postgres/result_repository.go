package postgres

import (
	"context"
	"fmt"
	"time"

	"challenge-service/internal/domain"
	"github.com/uptrace/bun"
)

type challengeResultRow struct {
	bun.BaseModel `bun:"table:challenge_results"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull"`
	CourseID       string    `bun:"course_id,notnull"`
	Score          float64   `bun:"score,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	CorrectAnswers int       `bun:"correct_answers,notnull"`
	TimeSpent      float64   `bun:"time_spent,notnull"`
	Points         int       `bun:"points,notnull"`
	IsChallenge    bool      `bun:"is_challenge,notnull"`
	ChallengeID    string    `bun:"challenge_id,notnull"`
	OpponentID     string    `bun:"opponent_id,notnull"`
	Won            bool      `bun:"won,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// ResultRepository stores challenge results in Postgres through bun.
type ResultRepository struct {
	db *bun.DB
}

func NewResultRepository(db *bun.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) RecordResult(ctx context.Context, result domain.ChallengeResult) error {
	row := toRow(result)
	if _, err := r.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert challenge result: %w", err)
	}
	return nil
}

func (r *ResultRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ChallengeResult, error) {
	var rows []challengeResultRow
	q := r.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list challenge results: %w", err)
	}
	out := make([]domain.ChallengeResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func toRow(r domain.ChallengeResult) challengeResultRow {
	return challengeResultRow{
		ID:             r.ID,
		UserID:         r.UserID,
		CourseID:       r.CourseID,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		CorrectAnswers: r.CorrectAnswers,
		TimeSpent:      r.TimeSpent,
		Points:         r.Points,
		IsChallenge:    r.IsChallenge,
		ChallengeID:    r.ChallengeID,
		OpponentID:     r.OpponentID,
		Won:            r.Won,
		CreatedAt:      r.CreatedAt,
	}
}

func (row challengeResultRow) toDomain() domain.ChallengeResult {
	return domain.ChallengeResult{
		ID:             row.ID,
		UserID:         row.UserID,
		CourseID:       row.CourseID,
		Score:          row.Score,
		TotalQuestions: row.TotalQuestions,
		CorrectAnswers: row.CorrectAnswers,
		TimeSpent:      row.TimeSpent,
		Points:         row.Points,
		IsChallenge:    row.IsChallenge,
		ChallengeID:    row.ChallengeID,
		OpponentID:     row.OpponentID,
		Won:            row.Won,
		CreatedAt:      row.CreatedAt,
	}
}
