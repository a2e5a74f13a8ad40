package seeders

import (
	"gorm.io/gorm"

	"github.com/shashiranjanraj/veritas/app/models"
	"github.com/shashiranjanraj/veritas/pkg/auth"
)

func init() {
	Register("users", SeedUsers)
}

// SeedUsers inserts demo portal accounts for local development.
// Existing accounts (matched by email) are left untouched. Signing
// addresses are assigned separately via `veritas key:generate`.
func SeedUsers(db *gorm.DB) error {
	demo := []struct {
		name  string
		email string
		role  string
	}{
		{"Acme Manufacturing", "manufacturer@example.com", models.RoleManufacturer},
		{"Main Street Retail", "retailer@example.com", models.RoleRetailer},
		{"Demo Consumer", "consumer@example.com", models.RoleConsumer},
	}

	hashed, err := auth.HashPassword("password")
	if err != nil {
		return err
	}

	for _, d := range demo {
		user := models.User{
			Name:     d.name,
			Email:    d.email,
			Password: hashed,
			Role:     d.role,
		}
		if err := db.Where("email = ?", d.email).FirstOrCreate(&user).Error; err != nil {
			return err
		}
	}
	return nil
}
