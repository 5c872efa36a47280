package repository

import (
	"context"

	"chatsync/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	List(ctx context.Context) ([]*entity.User, error)
	UpdateStatus(ctx context.Context, email, status string) (*entity.User, error)
}
