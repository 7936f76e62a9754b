package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/utils"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/grantflow/backend/pkg/response"
	"gorm.io/gorm"
)

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwtConfig: jwtCfg}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	ExpireAt time.Time    `json:"expireAt"`
}

var errBadCredentials = response.NewUnauthorized("invalid username or password")

// Login checks local credentials and issues a JWT.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("user is disabled")
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, errBadCredentials
	}

	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, hours)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("[Auth] failed to record last login")
	}

	return &LoginResponse{
		Token:    token,
		User:     &user,
		ExpireAt: now.Add(time.Duration(hours) * time.Hour),
	}, nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &contract.NotFoundError{Entity: "user", ID: id}
		}
		return nil, err
	}
	return &user, nil
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

// CreateUser adds a local account. Role defaults to user.
func (s *AuthService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	ve := &contract.ValidationError{}
	if strings.TrimSpace(req.Username) == "" {
		ve.Add("username", "is required")
	}
	if len(req.Password) < 6 {
		ve.Add("password", "must be at least 6 characters")
	}
	role := req.Role
	if role == "" {
		role = string(contract.RoleUser)
	}
	if role != string(contract.RoleUser) && role != string(contract.RoleAdmin) {
		ve.Add("role", "must be admin or user")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username: req.Username,
		Password: hashed,
		Email:    req.Email,
		Nickname: req.Nickname,
		Role:     role,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAdminIfNotExists creates the configured admin account when no admin exists.
func (s *AuthService) CreateAdminIfNotExists(ctx context.Context, cfg config.AdminConfig) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", contract.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err := s.CreateUser(ctx, &CreateUserRequest{
		Username: cfg.Username,
		Password: cfg.Password,
		Email:    cfg.Email,
		Nickname: "Administrator",
		Role:     string(contract.RoleAdmin),
	})
	if err != nil {
		return err
	}
	logger.Info().Str("username", cfg.Username).Msg("[Auth] default admin created")
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return contract.NewValidationError("oldPassword", "is incorrect")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("password", hashed).Error
}
