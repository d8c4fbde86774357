package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nokoroa/internal/database"
	"nokoroa/internal/models"
	"nokoroa/internal/observability"

	"gorm.io/gorm"
)

// UserRepository stores post authors. Accounts belong to the auth service;
// discovery only looks them up by email and creates demo authors.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// normalizeEmail is the form emails are compared in.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observability.TrackQuery("get_by_email", "users")()

	email = normalizeEmail(email)
	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, models.NewNotFoundError("User", email)
	case err != nil:
		return nil, fmt.Errorf("find author %s: %w", email, err)
	}
	return &user, nil
}

// Create stores user with a normalized email. A taken email is a validation
// error.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery("create", "users")()

	user.Email = normalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return models.NewValidationError("email " + user.Email + " is already registered")
		}
		return fmt.Errorf("create author: %w", err)
	}
	return nil
}
