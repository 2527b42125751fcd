package user

import (
	"context"
	defError "errors"
	"event-scheduler/internal/errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service defines the interface for user business logic
type Service interface {
	Register(user *User) error
	Login(email, password string) (*User, error)
	GetUserByID(id uint64) (*User, error)
	UserExists(ctx context.Context, id uint64) (bool, error)
	DeactivateUser(id uint64) error
}

// DefaultService implements Service
type DefaultService struct {
	repository UserRepository
}

// NewService creates a new user service
func NewService(repository UserRepository) Service {
	return &DefaultService{repository: repository}
}

// Register registers a new user
func (s *DefaultService) Register(user *User) error {
	// Check if username or email is already taken
	if _, err := s.repository.FindByUsername(user.Username); err == nil {
		return errors.BadRequest("Username already registered", nil)
	} else if !defError.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if _, err := s.repository.FindByEmail(user.Email); err == nil {
		return errors.BadRequest("Email already registered", nil)
	} else if !defError.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// Hash the password before saving
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.UnprocessableEntity("Can't hash password", err)
	}
	user.PasswordHash = string(hashedPassword)
	user.IsActive = true

	// Create user
	return s.repository.Create(user)
}

// Login authenticates a user
func (s *DefaultService) Login(email, password string) (*User, error) {
	// Find user by email
	user, err := s.repository.FindByEmail(email)
	if err != nil {
		return nil, errors.Unauthorized("Incorrect email or password", err)
	}

	// Check if user is active
	if !user.IsActive {
		return nil, errors.Unauthorized("User is not active", nil)
	}

	// Check password
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, errors.Unauthorized("Incorrect email or password", err)
	}

	return user, nil
}

// GetUserByID gets a user by ID
func (s *DefaultService) GetUserByID(id uint64) (*User, error) {
	return s.repository.FindByID(id)
}

// UserExists reports whether an active user with the id exists
func (s *DefaultService) UserExists(ctx context.Context, id uint64) (bool, error) {
	_, err := s.repository.FindByID(id)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeactivateUser deactivates a user
func (s *DefaultService) DeactivateUser(id uint64) error {
	return s.repository.Deactivate(id)
}
