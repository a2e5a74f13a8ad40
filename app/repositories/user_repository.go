package repositories

import (
	"github.com/shashiranjanraj/veritas/app/models"
	"github.com/shashiranjanraj/veritas/pkg/database"
)

// UserRepository handles database operations for User.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// FindByEmail looks up an account by email address.
func (r *UserRepository) FindByEmail(email string) (models.User, error) {
	var user models.User
	err := database.DB.Where("email = ?", email).First(&user).Error
	return user, err
}

// FindByID looks up an account by primary key.
func (r *UserRepository) FindByID(id uint) (models.User, error) {
	var user models.User
	err := database.DB.First(&user, id).Error
	return user, err
}

// FindByAddress looks up the account bound to an on-ledger address.
func (r *UserRepository) FindByAddress(address string) (models.User, error) {
	var user models.User
	err := database.DB.Where("address = ?", address).First(&user).Error
	return user, err
}

// Create persists a new account.
func (r *UserRepository) Create(user *models.User) error {
	return database.DB.Create(user).Error
}

// Update persists changes to an existing account.
func (r *UserRepository) Update(user *models.User) error {
	return database.DB.Save(user).Error
}
