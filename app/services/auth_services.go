package services

import (
	"errors"
	"fmt"

	"github.com/shashiranjanraj/veritas/app/models"
	"github.com/shashiranjanraj/veritas/app/repositories"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/auth"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService manages portal accounts. Manufacturer and retailer accounts
// get a signing identity in the keyring at registration time; consumers
// don't sign anything and get none.
type AuthService struct {
	users   *repositories.UserRepository
	keyring *provenance.Keyring
}

func NewAuthService(keyring *provenance.Keyring) *AuthService {
	return &AuthService{
		users:   repositories.NewUserRepository(),
		keyring: keyring,
	}
}

// TokenPair is the login/refresh response payload.
type TokenPair struct {
	Token   string `json:"token"`
	Refresh string `json:"refresh"`
	Address string `json:"address,omitempty"`
}

// Register creates an account. For signing roles a fresh key is generated
// and its address bound to the account.
func (s *AuthService) Register(name, email, password, role string) (models.User, error) {
	switch role {
	case "":
		role = models.RoleConsumer
	case models.RoleManufacturer, models.RoleRetailer, models.RoleConsumer:
	default:
		return models.User{}, fmt.Errorf("auth: unknown role %q", role)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	user := models.User{
		Name:     name,
		Email:    email,
		Password: hashed,
		Role:     role,
	}

	if role != models.RoleConsumer {
		addr, err := s.keyring.Generate()
		if err != nil {
			return models.User{}, fmt.Errorf("auth: generate signing key: %w", err)
		}
		user.Address = string(addr)
	}

	if err := s.users.Create(&user); err != nil {
		return models.User{}, fmt.Errorf("auth: create account: %w", err)
	}
	return user, nil
}

// Login checks credentials and issues a token pair.
func (s *AuthService) Login(email, password string) (TokenPair, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(user.Password, password) {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *AuthService) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := auth.ValidateToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByID(claims.UserID)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *AuthService) issue(user models.User) (TokenPair, error) {
	token, err := auth.GenerateToken(user.ID, user.Role, user.Address)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign token: %w", err)
	}
	refresh, err := auth.GenerateRefreshToken(user.ID, user.Role, user.Address)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}
	return TokenPair{Token: token, Refresh: refresh, Address: user.Address}, nil
}
