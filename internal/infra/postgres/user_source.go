package postgres

import (
	"context"
	"errors"
	"fmt"

	"challenge-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// UserSource reads display identities from the users table.
type UserSource struct {
	pool *pgxpool.Pool
}

func NewUserSource(pool *pgxpool.Pool) *UserSource {
	return &UserSource{pool: pool}
}

func (s *UserSource) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user := domain.User{ID: userID}
	err := s.pool.QueryRow(ctx, `SELECT first_name, last_name FROM users WHERE id=$1`, userID).
		Scan(&user.FirstName, &user.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
