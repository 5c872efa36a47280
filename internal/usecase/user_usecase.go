package usecase

import (
	"context"
	"strings"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

type UserUseCase struct {
	userRepo repository.UserRepository
}

func NewUserUseCase(userRepo repository.UserRepository) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
	}
}

func (uc *UserUseCase) ListUsers(ctx context.Context) ([]*entity.User, error) {
	return uc.userRepo.List(ctx)
}

func (uc *UserUseCase) GetUserProfile(ctx context.Context, email string) (*entity.User, error) {
	return uc.userRepo.GetByEmail(ctx, normalizeEmail(email))
}

// UpdateStatus lets a user change their own presence.
func (uc *UserUseCase) UpdateStatus(ctx context.Context, actor, email, status string) (*entity.User, error) {
	email = normalizeEmail(email)
	status = strings.ToLower(strings.TrimSpace(status))

	if email == "" || status == "" {
		return nil, errors.BadRequest("Email and status are required", nil)
	}
	if !entity.ValidUserStatus(status) {
		return nil, errors.BadRequest("Status must be online, offline or away", nil)
	}
	if email != normalizeEmail(actor) {
		return nil, errors.Forbidden("Cannot change another user's status", nil)
	}

	return uc.userRepo.UpdateStatus(ctx, email, status)
}

// SetPresence records a connection-driven presence change. Failures are
// only logged.
func (uc *UserUseCase) SetPresence(ctx context.Context, email string, online bool) {
	status := entity.UserStatusOffline
	if online {
		status = entity.UserStatusOnline
	}
	if _, err := uc.userRepo.UpdateStatus(ctx, email, status); err != nil {
		logger.Warn("Failed to set presence of %s to %s: %v", email, status, err)
	}
}
