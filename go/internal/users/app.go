package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/screentime/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error)
}

// App handles account business logic
type App struct {
	repo UsersRepository
	cost int
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
		cost: bcrypt.DefaultCost,
	}
}

// Register validates the form, then creates the account and records the
// registering device in one step.
func (a *App) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = NormalizeEmail(req.Email)

	birthdate, err := validateRegister(req)
	if err != nil {
		return nil, err
	}

	existing, err := a.repo.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrEmailTaken
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := a.repo.CreateUser(ctx, CreateUserParams{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Birthdate:    birthdate,
		UserAgent:    req.UserAgent,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("user registered")
	return user, nil
}

// Authenticate checks an email and password pair
func (a *App) Authenticate(ctx context.Context, req LoginRequest) (*models.User, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := validateLogin(req); err != nil {
		return nil, err
	}

	user, err := a.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}

	return user, nil
}

// GetUser retrieves a user by ID
func (a *App) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListDevices returns the devices recorded for a user
func (a *App) ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	devices, err := a.repo.ListDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}
