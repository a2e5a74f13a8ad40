package models

import "gorm.io/gorm"

// Account roles. Role gates which portal endpoints a token may call; the
// ledger enforces its own rules independently of these.
const (
	RoleManufacturer = "manufacturer"
	RoleRetailer     = "retailer"
	RoleConsumer     = "consumer"
)

// User is a portal account. Address is the account's on-ledger signing
// address; empty for consumer accounts, which never sign anything.
type User struct {
	gorm.Model
	Name     string `gorm:"size:255;not null" json:"name"`
	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string `gorm:"size:255;not null" json:"-"` // hashed, never serialised
	Role     string `gorm:"size:50;default:consumer" json:"role"`
	Address  string `gorm:"size:64;index" json:"address,omitempty"`
}
