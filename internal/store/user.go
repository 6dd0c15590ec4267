package store

import (
	"context"
	"time"

	"github.com/healthspend/apiserver/internal/docstore"
	"github.com/healthspend/apiserver/types"
)

type userDocument struct {
	ID           string `bson:"id" json:"id"`
	Email        string `bson:"email" json:"email"`
	Name         string `bson:"name" json:"name"`
	PasswordHash string `bson:"password_hash,omitempty" json:"password_hash,omitempty"`
	CreatedAt    string `bson:"created_at" json:"created_at"`
}

func (d userDocument) toUser() types.User {
	return types.User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		CreatedAt:    parseTime(d.CreatedAt),
	}
}

// UserRepository handles persistence for users.
type UserRepository struct {
	users docstore.Collection
}

func NewUserRepository(users docstore.Collection) *UserRepository {
	return &UserRepository{users: users}
}

// GetByID returns the user without its password hash.
func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, docstore.Filter{"id": id}, &doc, "password_hash"); err != nil {
		return types.User{}, mapErr(err)
	}
	return doc.toUser(), nil
}

// GetByEmail returns the user including its password hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, docstore.Filter{"email": email}, &doc); err != nil {
		return types.User{}, mapErr(err)
	}
	return doc.toUser(), nil
}

// Create stores a new user. It returns ErrDuplicate when the email is taken.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.CreatedAt = normalizeTime(user.CreatedAt)

	doc := userDocument{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		CreatedAt:    formatTime(user.CreatedAt),
	}
	if err := r.users.InsertOne(ctx, doc); err != nil {
		return types.User{}, mapErr(err)
	}
	return user, nil
}
