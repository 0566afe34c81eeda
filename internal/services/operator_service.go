package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
	tokenTTL        = 12 * time.Hour
	tokenIssuer     = "bazaarly-kernel"

	// DevOperatorUsername is used for the generated development operator.
	DevOperatorUsername = "kernel"
)

// OperatorClaims are carried by kernel operator tokens.
type OperatorClaims struct {
	OperatorID uint   `json:"oid"`
	Username   string `json:"username"`
	UserType   string `json:"user_type"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// OperatorService authenticates kernel operators and issues their tokens.
type OperatorService struct {
	db     *gorm.DB
	secret []byte
	now    func() time.Time
}

// NewOperatorService creates a new operator service.
func NewOperatorService(db *gorm.DB, cfg config.Config) *OperatorService {
	return &OperatorService{db: db, secret: []byte(cfg.JWTSecret), now: time.Now}
}

// Create adds an enabled operator.
func (s *OperatorService) Create(ctx context.Context, username, password, role string) (*models.KernelOperator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	if role != models.RoleKernelAdmin {
		role = models.RoleKernelViewer
	}
	op := &models.KernelOperator{Username: username, Role: role, Enabled: true}
	if err := op.SetPassword(password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(op).Error; err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}
	return op, nil
}

// Login checks credentials and returns a signed token. Five consecutive failures lock the
// account for fifteen minutes.
func (s *OperatorService) Login(ctx context.Context, username, password string) (string, *models.KernelOperator, error) {
	var op models.KernelOperator
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("load operator: %w", err)
	}
	if !op.Enabled {
		return "", nil, ErrInvalidCredentials
	}
	now := s.now()
	if op.IsLocked(now) {
		return "", nil, ErrAccountLocked
	}

	if !op.CheckPassword(password) {
		op.FailedLoginAttempts++
		if op.FailedLoginAttempts >= maxFailedLogins {
			until := now.Add(lockoutDuration)
			op.LockedUntil = &until
		}
		if err := s.db.WithContext(ctx).Save(&op).Error; err != nil {
			return "", nil, fmt.Errorf("record failed login: %w", err)
		}
		return "", nil, ErrInvalidCredentials
	}

	op.FailedLoginAttempts = 0
	op.LockedUntil = nil
	op.LastLogin = &now
	if err := s.db.WithContext(ctx).Save(&op).Error; err != nil {
		return "", nil, fmt.Errorf("record login: %w", err)
	}

	token, err := s.IssueToken(&op)
	if err != nil {
		return "", nil, err
	}
	return token, &op, nil
}

// IssueToken signs an HS256 token for op.
func (s *OperatorService) IssueToken(op *models.KernelOperator) (string, error) {
	now := s.now()
	claims := OperatorClaims{
		OperatorID: op.ID,
		Username:   op.Username,
		UserType:   models.UserTypeOperator,
		Role:       op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(op.ID), 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token. Any failure is reported as ErrInvalidToken.
func (s *OperatorService) ValidateToken(tokenString string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetByID loads an operator.
func (s *OperatorService) GetByID(ctx context.Context, id uint) (*models.KernelOperator, error) {
	var op models.KernelOperator
	err := s.db.WithContext(ctx).First(&op, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOperatorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load operator: %w", err)
	}
	return &op, nil
}

// ResetPassword sets a new password and clears any lockout.
func (s *OperatorService) ResetPassword(ctx context.Context, username, password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var op models.KernelOperator
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOperatorNotFound
	}
	if err != nil {
		return fmt.Errorf("load operator: %w", err)
	}
	if err := op.SetPassword(password); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	op.FailedLoginAttempts = 0
	op.LockedUntil = nil
	return s.db.WithContext(ctx).Save(&op).Error
}

// BootstrapResult describes what Bootstrap did.
type BootstrapResult struct {
	Created bool
	// GeneratedPassword is only set for the development operator and must be shown once.
	GeneratedPassword string
	Username          string
}

// Bootstrap creates the first admin operator when none exists. Configured credentials are
// used in every environment; without them production creates nothing and development
// generates a one-time password.
func (s *OperatorService) Bootstrap(ctx context.Context, cfg config.Config) (*BootstrapResult, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.KernelOperator{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count operators: %w", err)
	}
	if count > 0 {
		return &BootstrapResult{}, nil
	}

	if cfg.Admin.Username != "" && cfg.Admin.Password != "" {
		if _, err := s.Create(ctx, cfg.Admin.Username, cfg.Admin.Password, models.RoleKernelAdmin); err != nil {
			return nil, err
		}
		return &BootstrapResult{Created: true, Username: cfg.Admin.Username}, nil
	}
	if cfg.IsProduction() {
		return &BootstrapResult{}, nil
	}

	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	if _, err := s.Create(ctx, DevOperatorUsername, password, models.RoleKernelAdmin); err != nil {
		return nil, err
	}
	return &BootstrapResult{Created: true, Username: DevOperatorUsername, GeneratedPassword: password}, nil
}

func randomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
