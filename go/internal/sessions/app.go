package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/screentime/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a sign-in lasts
const DefaultTTL = 7 * 24 * time.Hour

// DefaultJanitorInterval is how often expired sessions are purged
const DefaultJanitorInterval = time.Hour

var ErrNotFound = errors.New("session not found")

// SessionsRepository defines what the app layer needs from storage
type SessionsRepository interface {
	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, token uuid.UUID) (*models.Session, error)
	DeleteSession(ctx context.Context, token uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// App manages sign-in sessions
type App struct {
	repo  SessionsRepository
	clock clockwork.Clock
	ttl   time.Duration
}

// NewApp creates a sessions App; a zero ttl means DefaultTTL
func NewApp(repo SessionsRepository, clock clockwork.Clock, ttl time.Duration) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &App{repo: repo, clock: clock, ttl: ttl}
}

// Create starts a session for userID
func (a *App) Create(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	now := a.clock.Now()
	s := models.Session{
		Token:     uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.repo.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &s, nil
}

// Resolve returns the user a live session belongs to
func (a *App) Resolve(ctx context.Context, token uuid.UUID) (uuid.UUID, error) {
	s, err := a.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get session: %w", err)
	}

	if s.Expired(a.clock.Now()) {
		if err := a.repo.DeleteSession(ctx, token); err != nil {
			log.Warn().Err(err).Msg("failed to delete expired session")
		}
		return uuid.Nil, ErrNotFound
	}
	return s.UserID, nil
}

// Destroy ends a session. Unknown tokens are not an error.
func (a *App) Destroy(ctx context.Context, token uuid.UUID) error {
	if err := a.repo.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RunJanitor purges expired sessions every interval until ctx is done.
// A non-positive interval falls back to DefaultJanitorInterval.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := a.repo.DeleteExpired(ctx, a.clock.Now())
			if err != nil {
				log.Error().Err(err).Msg("failed to purge expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("purged expired sessions")
			}
		}
	}
}
