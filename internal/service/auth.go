package service

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"courier/internal/domain"
	"courier/internal/redis"
	"courier/internal/repository"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// tokenClaims are the claims carried by access and refresh tokens.
type tokenClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthOptions configures token issuing.
type AuthOptions struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      quartz.Clock
}

// AuthService authenticates drivers and issues rotating token pairs.
type AuthService struct {
	driverRepo repository.DriverRepository
	sessions   redis.SessionStoreInterface
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      quartz.Clock
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	driverRepo repository.DriverRepository,
	sessions redis.SessionStoreInterface,
	opts AuthOptions,
) *AuthService {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		driverRepo: driverRepo,
		sessions:   sessions,
		secret:     opts.Secret,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		clock:      opts.Clock,
	}
}

// Login verifies phone and PIN and starts a new session.
func (s *AuthService) Login(ctx context.Context, phone, pin string) (*domain.AuthCredential, error) {
	if phone == "" || pin == "" {
		return nil, ErrInvalidCredentials
	}

	driver, err := s.driverRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(driver.PINHash), []byte(pin)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, driver.ID)
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.AuthCredential, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	session, err := s.sessions.ConsumeSession(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.DriverID != claims.Subject {
		return nil, ErrInvalidRefreshToken
	}

	return s.issue(ctx, claims.Subject)
}

// Logout revokes the session behind a refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	return s.sessions.RevokeSession(ctx, claims.ID)
}

// VerifyAccess validates an access token and returns the driver ID it was issued to.
func (s *AuthService) VerifyAccess(token string) (string, error) {
	claims, err := s.parse(token, tokenTypeAccess)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *AuthService) issue(ctx context.Context, driverID string) (*domain.AuthCredential, error) {
	now := s.clock.Now().Truncate(time.Second)
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	access, err := s.sign(tokenClaims{
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   driverID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	})
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	refresh, err := s.sign(tokenClaims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   driverID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	})
	if err != nil {
		return nil, err
	}

	session := &domain.RefreshSession{
		ID:        sessionID,
		DriverID:  driverID,
		ExpiresAt: refreshExp.Unix(),
	}
	if err := s.sessions.SaveSession(ctx, session, s.refreshTTL); err != nil {
		return nil, err
	}

	return &domain.AuthCredential{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  &accessExp,
		RefreshExpiresAt: &refreshExp,
	}, nil
}

func (s *AuthService) sign(claims tokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AuthService) parse(token, wantType string) (*tokenClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Type != wantType || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
