package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"betting_ledger/internal/apperr"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 50
	maxPhoneLength    = 15

	housePhoneNumber = "0000000000"
)

type Service struct {
	repo UserRepository
}

func NewService(repo UserRepository) *Service {
	return &Service{repo: repo}
}

// Register creates a user, storing only the bcrypt hash of the password
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.PhoneNumber)

	if len(username) < 3 || len(username) > maxUsernameLength {
		return nil, apperr.Invalid("username", fmt.Sprintf("must be between 3 and %d characters", maxUsernameLength))
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.Invalid("email", "is not a valid address")
		}
	}
	if !validPhone(phone) {
		return nil, apperr.Invalid("phone_number", fmt.Sprintf("must be up to %d digits, optionally starting with +", maxPhoneLength))
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperr.Invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	exists, err := s.repo.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateUser
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		ID:          uuid.New().String(),
		Username:    username,
		PhoneNumber: phone,
		Password:    hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if email != "" {
		user.Email = &email
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")

	return user, nil
}

// Authenticate returns the user when username and password match
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (*User, error) {
	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// EnsureHouseAccount returns the house user's id, creating the account on first start.
// The house account gets a random password nobody knows.
func (s *Service) EnsureHouseAccount(ctx context.Context, username string) (string, error) {
	house, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		return house.ID, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return "", err
	}

	hash, err := HashPassword(uuid.New().String())
	if err != nil {
		return "", err
	}
	now := time.Now()
	house = &User{
		ID:          uuid.New().String(),
		Username:    username,
		PhoneNumber: housePhoneNumber,
		Password:    hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, house); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			// another instance created it concurrently
			existing, getErr := s.repo.GetByUsername(ctx, username)
			if getErr != nil {
				return "", getErr
			}
			return existing.ID, nil
		}
		return "", err
	}

	log.WithField("user_id", house.ID).Info("House account created")
	return house.ID, nil
}

func validPhone(phone string) bool {
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" || len(phone) > maxPhoneLength {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
