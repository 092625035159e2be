// Package auth signs the user in and out of the sync backend and keeps the
// local identity settings in step with the session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"aqualog/internal/models"
	"aqualog/internal/remote"

	"github.com/rs/zerolog"
)

const minPasswordLen = 6

// Backend is the remote auth API. *remote.Client implements it.
type Backend interface {
	SignUp(ctx context.Context, email, password, name string) (*remote.Session, error)
	SignIn(ctx context.Context, email, password string) (*remote.Session, error)
	SignOut(ctx context.Context) error
	SetSession(accessToken, refreshToken string) (*remote.Session, error)
	OnSessionChange(fn func(*remote.Session))
	UpsertProfile(ctx context.Context, p models.RemoteProfile) error
}

// SettingsStore persists identity and tokens. *settings.Service implements it.
type SettingsStore interface {
	Load(ctx context.Context) (models.Settings, error)
	SetIdentity(ctx context.Context, userID, name, email string) error
	ClearIdentity(ctx context.Context) error
	Session(ctx context.Context) (accessToken, refreshToken string, err error)
	SetSession(ctx context.Context, accessToken, refreshToken string) error
}

// Status is a snapshot of the auth state.
type Status struct {
	State  State  `json:"state"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Service struct {
	backend  Backend
	settings SettingsStore
	fsm      *FSM
	logger   *zerolog.Logger

	opMu   sync.Mutex
	mu     sync.RWMutex
	status Status
}

func NewService(backend Backend, settings SettingsStore, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		backend:  backend,
		settings: settings,
		fsm:      NewFSM(),
		logger:   logger,
		status:   Status{State: StateUnauthenticated},
	}
	backend.OnSessionChange(s.persistTokens)
	return s
}

// Status returns the current auth state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SignUp creates an account and signs in.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (Status, error) {
	email, name = strings.TrimSpace(email), strings.TrimSpace(name)
	if err := validateCredentials(email, password); err != nil {
		return s.Status(), err
	}
	if name == "" {
		return s.Status(), fmt.Errorf("%w: name is required", models.ErrValidation)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.begin(); err != nil {
		return s.Status(), err
	}
	sess, err := s.backend.SignUp(ctx, email, password, name)
	if err != nil {
		return s.fail("sign up", err)
	}
	if sess.Name == "" {
		sess.Name = name
	}
	return s.complete(ctx, sess)
}

// SignIn authenticates an existing account.
func (s *Service) SignIn(ctx context.Context, email, password string) (Status, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return s.Status(), err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.begin(); err != nil {
		return s.Status(), err
	}
	sess, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return s.fail("sign in", err)
	}
	return s.complete(ctx, sess)
}

// SignOut ends the session. Local identity is cleared even when the backend
// cannot be reached.
func (s *Service) SignOut(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("backend sign-out failed, clearing local session anyway")
	}
	if err := s.settings.ClearIdentity(ctx); err != nil {
		return err
	}
	s.set(Status{State: StateUnauthenticated})
	s.logger.Info().Msg("signed out")
	return nil
}

// Restore resumes the session persisted by a previous run, if any.
func (s *Service) Restore(ctx context.Context) (Status, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	access, refresh, err := s.settings.Session(ctx)
	if err != nil {
		return s.Status(), err
	}
	if access == "" {
		return s.Status(), nil
	}

	sess, err := s.backend.SetSession(access, refresh)
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding unusable stored session")
		if clearErr := s.settings.ClearIdentity(ctx); clearErr != nil {
			return s.Status(), clearErr
		}
		s.set(Status{State: StateUnauthenticated})
		return s.Status(), nil
	}

	local, err := s.settings.Load(ctx)
	if err != nil {
		return s.Status(), err
	}
	name := local.UserName
	if name == "" {
		name = sess.Name
	}
	s.set(Status{State: StateAuthenticated, UserID: sess.UserID, Email: sess.Email, Name: name})
	s.logger.Info().Str("user_id", sess.UserID).Msg("session restored")
	return s.Status(), nil
}

func (s *Service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State == StateAuthenticated {
		return fmt.Errorf("%w: already signed in as %s", models.ErrAuth, s.status.Email)
	}
	if !s.fsm.CanTransition(s.status.State, StateAuthenticating) {
		return fmt.Errorf("%w: cannot start sign-in from %s", models.ErrAuth, s.status.State)
	}
	s.status = Status{State: StateAuthenticating}
	return nil
}

func (s *Service) fail(op string, err error) (Status, error) {
	msg := remote.BackendMessage(err)
	if msg == "" {
		msg = err.Error()
	}
	s.set(Status{State: StateUnauthenticated, Error: msg})
	s.logger.Warn().Err(err).Str("op", op).Msg("authentication failed")

	if !errors.Is(err, models.ErrAuth) {
		err = fmt.Errorf("%w: %w", models.ErrAuth, err)
	}
	return s.Status(), fmt.Errorf("%s: %w", op, err)
}

func (s *Service) complete(ctx context.Context, sess *remote.Session) (Status, error) {
	name := sess.Name
	if name == "" {
		name, _, _ = strings.Cut(sess.Email, "@")
	}

	if err := s.settings.SetIdentity(ctx, sess.UserID, name, sess.Email); err != nil {
		s.set(Status{State: StateUnauthenticated, Error: err.Error()})
		return s.Status(), err
	}

	local, err := s.settings.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not read goal for profile upsert")
		local = models.DefaultSettings()
	}
	profile := models.RemoteProfile{ID: sess.UserID, Name: name, DailyGoalMl: local.DailyGoalMl}
	if err := s.backend.UpsertProfile(ctx, profile); err != nil {
		s.logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("profile upsert failed")
	}

	s.set(Status{State: StateAuthenticated, UserID: sess.UserID, Email: sess.Email, Name: name})
	s.logger.Info().Str("user_id", sess.UserID).Msg("signed in")
	return s.Status(), nil
}

func (s *Service) set(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// persistTokens keeps stored tokens current across sign-in and refresh.
// Sign-out clears them through ClearIdentity.
func (s *Service) persistTokens(sess *remote.Session) {
	if sess == nil {
		return
	}
	if err := s.settings.SetSession(context.Background(), sess.AccessToken, sess.RefreshToken); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist session tokens")
	}
}

func validateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: invalid email address", models.ErrValidation)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, minPasswordLen)
	}
	return nil
}
