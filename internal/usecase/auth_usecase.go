package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// TokenClaims is the payload of a session token. Subject is the user email.
type TokenClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type AuthUseCase struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
}

func NewAuthUseCase(userRepo repository.UserRepository, jwtSecret string, jwtExpiry time.Duration) *AuthUseCase {
	return &AuthUseCase{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		jwtExpiry: jwtExpiry,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type AuthResult struct {
	User  *entity.User
	Token string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (uc *AuthUseCase) Register(ctx context.Context, input RegisterInput) (*entity.User, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" || input.Password == "" {
		return nil, errors.BadRequest("Name, email and password are required", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("Failed to hash password", err)
	}

	user := &entity.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Status:       entity.UserStatusOffline,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.Info("User registered: %s", email)
	return user, nil
}

// Login reports an unknown email as NOT_FOUND and a wrong password as
// INVALID_PASSWORD so the caller can tell them apart.
func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := uc.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, errors.NotFound("User", err)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.InvalidPassword()
	}

	if updated, err := uc.userRepo.UpdateStatus(ctx, email, entity.UserStatusOnline); err != nil {
		logger.Warn("Failed to mark %s online: %v", email, err)
	} else {
		user = updated
	}

	token, err := uc.IssueToken(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, Token: token}, nil
}

func (uc *AuthUseCase) Logout(ctx context.Context, email string) error {
	if _, err := uc.userRepo.UpdateStatus(ctx, email, entity.UserStatusOffline); err != nil {
		return err
	}
	return nil
}

func (uc *AuthUseCase) IssueToken(user *entity.User) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(uc.jwtExpiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.jwtSecret)
	if err != nil {
		return "", errors.Internal("Failed to generate authentication token", err)
	}
	return token, nil
}

// VerifyToken checks signature and expiry and returns the claims.
func (uc *AuthUseCase) VerifyToken(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("Unexpected signing method", nil)
		}
		return uc.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}
	if claims.Subject == "" {
		return nil, errors.Unauthorized("Token has no subject", nil)
	}
	return claims, nil
}
