package repository

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/pkg/errors"
)

const usersCollection = "users"

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

// userDocID keys user documents by normalized email so that Create is
// atomic per address.
func userDocID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *firestoreUserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = userDocID(user.Email)
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.client.Collection(usersCollection).Doc(userDocID(user.Email)).Create(ctx, user); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Email already registered")
		}
		return storeError("Failed to create user", err)
	}
	return nil
}

func (r *firestoreUserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	doc, err := r.client.Collection(usersCollection).Doc(userDocID(email)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", nil)
		}
		return nil, storeError("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	return &user, nil
}

func (r *firestoreUserRepository) List(ctx context.Context) ([]*entity.User, error) {
	iter := r.client.Collection(usersCollection).OrderBy("name", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	users := make([]*entity.User, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, storeError("Failed to list users", err)
		}

		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			return nil, errors.Internal("Failed to parse user data", err)
		}
		users = append(users, &user)
	}
	return users, nil
}

func (r *firestoreUserRepository) UpdateStatus(ctx context.Context, email, userStatus string) (*entity.User, error) {
	ref := r.client.Collection(usersCollection).Doc(userDocID(email))
	now := time.Now()
	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "status", Value: userStatus},
		{Path: "updatedAt", Value: now},
	}); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", nil)
		}
		return nil, storeError("Failed to update user status", err)
	}

	return r.GetByEmail(ctx, email)
}
