package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aqualog/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Session is a signed-in backend session.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Email        string
	Name         string
}

// Expired reports whether the access token is (nearly) unusable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.Add(refreshLeeway).After(s.ExpiresAt)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Metadata struct {
			Name string `json:"name"`
		} `json:"user_metadata"`
	} `json:"user"`
}

// SignUp registers a new account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"name": name},
	}
	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/auth/v1/signup", "", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("sign up: %w", asAuthFailure(err))
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("sign up: %w: account created, confirm the email address before signing in", models.ErrAuth)
	}
	return c.adopt(resp)
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("sign in: %w", asAuthFailure(err))
	}
	return c.adopt(resp)
}

// Refresh exchanges the refresh token for a new session.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	var refresh string
	if c.session != nil {
		refresh = c.session.RefreshToken
	}
	c.mu.RUnlock()
	if refresh == "" {
		return nil, fmt.Errorf("refresh: %w: not signed in", models.ErrAuth)
	}

	var resp tokenResponse
	body := map[string]string{"refresh_token": refresh}
	if err := c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("refresh: %w", asAuthFailure(err))
	}
	return c.adopt(resp)
}

// SignOut ends the session locally and, best effort, on the backend.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	hook := c.onSession
	c.mu.Unlock()

	if hook != nil {
		hook(nil)
	}
	if s == nil {
		return nil
	}
	if err := c.send(ctx, http.MethodPost, "/auth/v1/logout", s.AccessToken, nil, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// SetSession restores a session from stored tokens. The user id, email and
// expiry are read from the access token's claims; the signature is the
// backend's to check.
func (c *Client) SetSession(accessToken, refreshToken string) (*Session, error) {
	s, err := sessionFromToken(accessToken)
	if err != nil {
		return nil, err
	}
	s.RefreshToken = refreshToken
	c.store(s)
	return s, nil
}

// CurrentSession returns a copy of the active session, or nil.
func (c *Client) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// CurrentUserID is empty when signed out.
func (c *Client) CurrentUserID() string {
	if s := c.CurrentSession(); s != nil {
		return s.UserID
	}
	return ""
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	s := c.CurrentSession()
	if s == nil {
		return "", fmt.Errorf("%w: not signed in", models.ErrAuth)
	}
	if !s.Expired(time.Now()) {
		return s.AccessToken, nil
	}
	if s.RefreshToken == "" {
		return "", fmt.Errorf("%w: session expired", models.ErrAuth)
	}
	refreshed, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (c *Client) adopt(resp tokenResponse) (*Session, error) {
	s, err := sessionFromToken(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	s.RefreshToken = resp.RefreshToken
	if resp.User.ID != "" {
		s.UserID = resp.User.ID
	}
	if resp.User.Email != "" {
		s.Email = resp.User.Email
	}
	if resp.User.Metadata.Name != "" {
		s.Name = resp.User.Metadata.Name
	}
	if s.ExpiresAt.IsZero() && resp.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	c.store(s)
	return s, nil
}

func (c *Client) store(s *Session) {
	c.mu.Lock()
	c.session = s
	hook := c.onSession
	c.mu.Unlock()

	if hook != nil {
		cp := *s
		hook(&cp)
	}
}

func sessionFromToken(accessToken string) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed access token: %w", models.ErrAuth, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: access token has no subject", models.ErrAuth)
	}

	s := &Session{AccessToken: accessToken, UserID: sub}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		if name, ok := meta["name"].(string); ok {
			s.Name = name
		}
	}
	return s, nil
}

// asAuthFailure maps rejected credentials to ErrAuth. The token endpoint
// answers bad passwords with 400.
func asAuthFailure(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError && !errors.Is(err, models.ErrAuth) {
		return fmt.Errorf("%w: %w", models.ErrAuth, err)
	}
	return err
}

