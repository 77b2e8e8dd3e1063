package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

// UserRepository reads the directory owned by the surrounding application.
// Create exists for seeding and tests.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id int64) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) Create(ctx context.Context, user *models.User) error {
	err := u.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, telegram_chat_id) VALUES ($1, $2, $3) RETURNING id`,
		strings.TrimSpace(user.Name), strings.TrimSpace(user.Email), nullableInt64(user.TelegramChatID),
	).Scan(&user.ID)
	return errors.Wrap(err, "insert user")
}

func (u *userRepository) Get(ctx context.Context, id int64) (models.User, error) {
	var (
		user   models.User
		chatID sql.NullInt64
	)
	err := u.db.QueryRowContext(ctx,
		`SELECT id, name, email, telegram_chat_id FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Name, &user.Email, &chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, errors.Wrapf(err, "get user %d", id)
	}
	user.TelegramChatID = int64Ptr(chatID)
	return user, nil
}
