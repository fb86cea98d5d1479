package repository

import (
	"context"
	"fmt"

	"github.com/example/takeout/pkg/models"
	"gorm.io/gorm"
)

// UserRepository reads user profiles and address books. Both are owned by
// the account module; this side only looks them up.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

func (r *UserRepository) GetAddress(ctx context.Context, id int64) (*models.AddressBook, error) {
	var addr models.AddressBook
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&addr).Error; err != nil {
		return nil, fmt.Errorf("get address %d: %w", id, err)
	}
	return &addr, nil
}
