package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type recordingSeeder struct {
	calls []uint
	fail  bool
}

func (s *recordingSeeder) EnsureDefaults(ctx context.Context, tx *gorm.DB, userID uint) error {
	s.calls = append(s.calls, userID)
	if s.fail {
		return errors.New("seeding failed")
	}
	return nil
}

func newTestService(t *testing.T, seeder LibrarySeeder) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:atlas_users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }
	service, err := NewService(ServiceConfig{Database: db, Seeder: seeder, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func TestSignupCreatesAccountAndSeedsLibrary(t *testing.T) {
	seeder := &recordingSeeder{}
	service, db := newTestService(t, seeder)

	user, err := service.Signup(context.Background(), "  Alice@Example.COM ", "s3cretpass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "s3cretpass" {
		t.Fatalf("password must be hashed")
	}
	if len(seeder.calls) != 1 || seeder.calls[0] != user.ID {
		t.Fatalf("expected library seeding for the new account, got %v", seeder.calls)
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one user row, got %d", count)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	service, db := newTestService(t, nil)

	if _, err := service.Signup(context.Background(), "bob@example.com", "password1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Signup(context.Background(), "BOB@example.com", "password2")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("duplicate signup must not add rows, got %d", count)
	}
}

func TestSignupRollsBackWhenSeedingFails(t *testing.T) {
	seeder := &recordingSeeder{fail: true}
	service, db := newTestService(t, seeder)

	if _, err := service.Signup(context.Background(), "carol@example.com", "password1"); err == nil {
		t.Fatalf("expected signup to fail when seeding fails")
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed signup must leave no user row, got %d", count)
	}
}

func TestLoginVerifiesCredentials(t *testing.T) {
	service, _ := newTestService(t, nil)

	created, err := service.Signup(context.Background(), "dave@example.com", "password1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user, err := service.Login(context.Background(), "Dave@Example.com", "password1")
	if err != nil {
		t.Fatalf("expected login success: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("unexpected account returned")
	}

	if _, err := service.Login(context.Background(), "dave@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := service.Login(context.Background(), "nobody@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginToleratesSeederFailure(t *testing.T) {
	service, _ := newTestService(t, nil)
	if _, err := service.Signup(context.Background(), "erin@example.com", "password1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	service.seeder = &recordingSeeder{fail: true}
	if _, err := service.Login(context.Background(), "erin@example.com", "password1"); err != nil {
		t.Fatalf("login must succeed even when defaults seeding fails: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	service, _ := newTestService(t, nil)
	user, err := service.Signup(context.Background(), "frank@example.com", "oldpassword")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = service.ChangePassword(context.Background(), user.ID, "wrong", "newpassword")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	err = service.ChangePassword(context.Background(), user.ID, "oldpassword", "short")
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := service.ChangePassword(context.Background(), user.ID, "oldpassword", "newpassword"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Login(context.Background(), "frank@example.com", "newpassword"); err != nil {
		t.Fatalf("expected login with new password: %v", err)
	}
	if _, err := service.Login(context.Background(), "frank@example.com", "oldpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	service, _ := newTestService(t, nil)
	user, err := service.Signup(context.Background(), "grace@example.com", "password1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := service.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Email != "grace@example.com" {
		t.Fatalf("unexpected email %q", loaded.Email)
	}

	if _, err := service.GetByID(context.Background(), 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
