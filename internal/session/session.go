// Package session logs the driver in and out of the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"courier/internal/credentials"
	"courier/internal/domain"
	"courier/internal/transport"
)

// LoginPath is the backend login endpoint.
const LoginPath = "/auth/login"

// ErrInvalidCredentials is returned when the backend rejects the phone/PIN pair.
var ErrInvalidCredentials = errors.New("invalid phone or pin")

// PublicPoster sends an unauthenticated JSON POST.
type PublicPoster interface {
	PostPublic(ctx context.Context, path string, body any) (*transport.Response, error)
}

// Manager stores and clears the driver's session.
type Manager struct {
	logger zerolog.Logger
	api    PublicPoster
	store  credentials.Store
}

// NewManager creates a Manager.
func NewManager(logger zerolog.Logger, api PublicPoster, store credentials.Store) *Manager {
	return &Manager{logger: logger, api: api, store: store}
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

// Login exchanges phone and pin for a session and persists it.
func (m *Manager) Login(ctx context.Context, phone, pin string) error {
	resp, err := m.api.PostPublic(ctx, LoginPath, loginRequest{Phone: phone, PIN: pin})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrInvalidCredentials
	case !resp.OK():
		return fmt.Errorf("login: %w: %d", transport.ErrUnexpectedStatus, resp.StatusCode)
	}

	var cred domain.AuthCredential
	if err := json.Unmarshal(resp.Body, &cred); err != nil {
		return fmt.Errorf("login: decode session: %w", err)
	}
	if cred.AccessToken == "" {
		return errors.New("login: response carried no access token")
	}
	credentials.FillExpiry(&cred)
	if err := m.store.Save(ctx, &cred); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	m.logger.Info().Msg("[SESSION] Logged in")
	return nil
}

// Logout clears the stored session.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	m.logger.Info().Msg("[SESSION] Logged out")
	return nil
}

// Authenticated reports whether a session is stored.
func (m *Manager) Authenticated(ctx context.Context) bool {
	_, err := m.store.Load(ctx)
	return err == nil
}
