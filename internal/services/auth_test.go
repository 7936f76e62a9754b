package services

import (
	"context"
	"testing"

	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/utils"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/response"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	utils.SetJWTSecret("test-secret")
	return NewAuthService(newTestDB(t), &config.JWTConfig{ExpireHour: 2})
}

func TestAuthService_Login(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, &CreateUserRequest{Username: "alice", Password: "secret1", Email: "alice@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if user.Role != "user" || user.Password == "secret1" {
		t.Errorf("unexpected user role=%q, password must be hashed", user.Role)
	}

	resp, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := utils.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != "user" {
		t.Errorf("unexpected claims %+v", claims)
	}
	got, _ := svc.GetUserByID(ctx, user.ID)
	if got.LastLogin == nil {
		t.Error("last login not recorded")
	}

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", LoginRequest{Username: "alice", Password: "nope"}},
		{"unknown user", LoginRequest{Username: "bob", Password: "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, &tt.req)
			if status, _ := response.Status(err); status != 401 {
				t.Errorf("status = %d, expected 401 (%v)", status, err)
			}
		})
	}
}

func TestAuthService_CreateUserValidation(t *testing.T) {
	svc := newAuthService(t)
	_, err := svc.CreateUser(context.Background(), &CreateUserRequest{Username: " ", Password: "123", Role: "root"})
	ve, ok := err.(*contract.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"username", "password", "role"} {
		if !ve.Has(field) {
			t.Errorf("missing violation on %s", field)
		}
	}
}

func TestAuthService_CreateAdminIfNotExists(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	cfg := config.AdminConfig{Username: "admin", Password: "admin123"}

	for i := 0; i < 2; i++ {
		if err := svc.CreateAdminIfNotExists(ctx, cfg); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	var count int64
	svc.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count != 1 {
		t.Errorf("admins = %d, expected 1", count)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, &CreateUserRequest{Username: "carol", Password: "oldpass"})
	if err != nil {
		t.Fatal(err)
	}

	err = svc.ChangePassword(ctx, user.ID, &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpass"})
	if !contract.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, &ChangePasswordRequest{OldPassword: "oldpass", NewPassword: "newpass"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, &LoginRequest{Username: "carol", Password: "newpass"}); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}
