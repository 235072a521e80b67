package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"courier/internal/domain"
	"courier/internal/repository"
)

// DriverService handles driver operations.
type DriverService struct {
	driverRepo repository.DriverRepository
}

// NewDriverService creates a new DriverService.
func NewDriverService(driverRepo repository.DriverRepository) *DriverService {
	return &DriverService{driverRepo: driverRepo}
}

// RegisterDriverRequest contains the parameters for registering a driver.
type RegisterDriverRequest struct {
	Name  string
	Phone string
	PIN   string
}

// Register creates an OFFLINE driver whose PIN is stored as a bcrypt hash.
func (s *DriverService) Register(ctx context.Context, req RegisterDriverRequest) (*domain.Driver, error) {
	if req.Phone == "" {
		return nil, ErrInvalidPhone
	}
	if !validPIN(req.PIN) {
		return nil, ErrInvalidPIN
	}

	_, err := s.driverRepo.GetByPhone(ctx, req.Phone)
	switch {
	case err == nil:
		return nil, ErrDriverAlreadyExists
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	driver := &domain.Driver{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Phone:   req.Phone,
		PINHash: string(hash),
		Status:  domain.DriverStatusOffline,
	}
	if err := s.driverRepo.Create(ctx, driver); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDriverAlreadyExists
		}
		return nil, err
	}

	return driver, nil
}

// GetByID returns a driver.
func (s *DriverService) GetByID(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.driverRepo.GetByID(ctx, driverID)
}

// SetOffline marks a driver OFFLINE.
func (s *DriverService) SetOffline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	return s.driverRepo.UpdateStatus(ctx, driverID, domain.DriverStatusOffline)
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
