package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atlasnotes/atlas/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 8

var (
	// ErrEmailTaken indicates signup was attempted with an already registered email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates a failed login or password check.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrPasswordTooShort indicates the new password does not meet the length floor.
	ErrPasswordTooShort = errors.New("users: password too short")
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")

	errMissingDatabase = errors.New("users: database handle is required")
)

// LibrarySeeder provisions the default subject and notebook for an account.
// Seeding runs inside the signup/login transaction so a half-created account
// never becomes visible.
type LibrarySeeder interface {
	EnsureDefaults(ctx context.Context, tx *gorm.DB, userID uint) error
}

// ServiceConfig describes the dependencies of the account service.
type ServiceConfig struct {
	Database *gorm.DB
	Seeder   LibrarySeeder
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages local accounts: signup, login, and password changes.
type Service struct {
	db     *gorm.DB
	seeder LibrarySeeder
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		seeder: cfg.Seeder,
		clock:  clock,
		logger: logger,
	}, nil
}

// Signup registers a new account and seeds its default library.
func (s *Service) Signup(ctx context.Context, email, password string) (User, error) {
	normalized := normalizeEmail(email)
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	user := User{
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    s.clock().UTC(),
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("email = ?", normalized).Take(&existing).Error
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if s.seeder != nil {
			return s.seeder.EnsureDefaults(ctx, tx, user.ID)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrEmailTaken) {
			s.logger.Error("signup failed", zap.String("email", normalized), zap.Error(txErr))
		}
		return User{}, txErr
	}
	return user, nil
}

// Login verifies the credentials and returns the matching account.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	normalized := normalizeEmail(email)

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("login lookup failed", zap.String("email", normalized), zap.Error(err))
		return User{}, err
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}

	if s.seeder != nil {
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.seeder.EnsureDefaults(ctx, tx, user.ID)
		})
		if txErr != nil {
			s.logger.Warn("library defaults check failed on login",
				zap.Uint("user_id", user.ID), zap.Error(txErr))
		}
	}
	return user, nil
}

// GetByID loads an account by its identifier.
func (s *Service) GetByID(ctx context.Context, userID uint) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ChangePassword replaces the stored hash after verifying the current password.
func (s *Service) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	var user User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	trimmed := strings.TrimSpace(newPassword)
	if len(trimmed) < minPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := auth.HashPassword(trimmed)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	return s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("password_hash", hash).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
