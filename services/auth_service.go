package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"choraid-server/models"
)

// RegisterRequest is the body for creating an account
type RegisterRequest struct {
	FullName string `json:"fullName" binding:"required,min=2,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone" binding:"max=32"`
	Role     string `json:"role" binding:"omitempty,oneof=client worker"`
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"deviceId"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateProfileRequest carries the editable profile fields
type UpdateProfileRequest struct {
	FullName  *string `json:"fullName" binding:"omitempty,min=2,max=255"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	AvatarURL *string `json:"avatarUrl" binding:"omitempty,url,max=500"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Profile *models.Profile `json:"profile"`
	Tokens  *TokenPair      `json:"tokens"`
}

// AuthService owns local accounts and hosted-identity provisioning
type AuthService struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewAuthService(db *gorm.DB, jwt *JWTService) *AuthService {
	return &AuthService{db: db, jwt: jwt}
}

// Register creates a client or worker profile and signs it in
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, meta ClientMeta) (*AuthResponse, error) {
	if ok, problems := ValidatePasswordStrength(req.Password); !ok {
		return nil, fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrValidation)
	}

	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleClient
	}
	if role != models.RoleClient && role != models.RoleWorker {
		return nil, fmt.Errorf("role %q cannot be self-assigned: %w", req.Role, ErrValidation)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("email already registered: %w", ErrConflict)
	}

	hash, err := s.jwt.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile := &models.Profile{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("email already registered: %w", ErrConflict)
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	tokens, err := s.jwt.GenerateTokenPair(ctx, profile, meta)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Registered %s profile %d", profile.Role, profile.ID)
	return &AuthResponse{Profile: profile, Tokens: tokens}, nil
}

// EnsureAdmin creates an admin profile for email, or promotes the existing one
func (s *AuthService) EnsureAdmin(ctx context.Context, fullName, email, password string) (*models.Profile, error) {
	if ok, problems := ValidatePasswordStrength(password); !ok {
		return nil, fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrValidation)
	}
	hash, err := s.jwt.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	var profile models.Profile
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Model(&profile).Updates(map[string]interface{}{
			"role":          models.RoleAdmin,
			"password_hash": hash,
			"is_active":     true,
		}).Error; err != nil {
			return nil, err
		}
		log.Printf("✅ Promoted profile %d to admin", profile.ID)
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = models.Profile{
			FullName:     strings.TrimSpace(fullName),
			Email:        email,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
			IsActive:     true,
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		log.Printf("✅ Created admin profile %d", profile.ID)
	default:
		return nil, err
	}
	return &profile, nil
}

// Login checks the credentials of a local account
func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta ClientMeta) (*AuthResponse, error) {
	var profile models.Profile
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invalid email or password: %w", ErrUnauthorized)
		}
		return nil, err
	}
	if !s.jwt.CheckPasswordHash(req.Password, profile.PasswordHash) {
		log.Printf("⚠️ Failed login for profile %d", profile.ID)
		return nil, fmt.Errorf("invalid email or password: %w", ErrUnauthorized)
	}
	if !profile.IsActive {
		return nil, fmt.Errorf("account is deactivated: %w", ErrUnauthorized)
	}
	if meta.DeviceID == "" {
		meta.DeviceID = req.DeviceID
	}

	tokens, err := s.jwt.GenerateTokenPair(ctx, &profile, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Profile: &profile, Tokens: tokens}, nil
}

// Logout revokes one refresh token, or all of them when none is given
func (s *AuthService) Logout(ctx context.Context, actor *models.Profile, refreshToken string) error {
	if refreshToken == "" {
		return s.jwt.RevokeAllProfileTokens(ctx, actor.ID)
	}
	return s.jwt.RevokeRefreshToken(ctx, actor.ID, refreshToken)
}

// Refresh exchanges a refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.jwt.RefreshAccessToken(ctx, refreshToken)
}

// Profile loads an active profile by id
func (s *AuthService) Profile(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("profile %d not found: %w", id, ErrUnauthorized)
		}
		return nil, err
	}
	if !profile.IsActive {
		return nil, fmt.Errorf("profile %d is deactivated: %w", id, ErrUnauthorized)
	}
	return &profile, nil
}

// UpdateMe applies the non-nil fields of req to the caller's profile
func (s *AuthService) UpdateMe(ctx context.Context, actor *models.Profile, req UpdateProfileRequest) (*models.Profile, error) {
	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(updates) == 0 {
		return actor, nil
	}

	profile := *actor
	if err := s.db.WithContext(ctx).Model(&profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &profile, nil
}

// ResolveIdentity returns the profile linked to a hosted identity,
// provisioning one the first time the identity is seen.
func (s *AuthService) ResolveIdentity(ctx context.Context, id *Identity) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("auth_provider_id = ?", id.ProviderID).First(&profile).Error
	if err == nil {
		if !profile.IsActive {
			return nil, fmt.Errorf("profile %d is deactivated: %w", profile.ID, ErrUnauthorized)
		}
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// an existing local account with the same email is linked rather than
	// duplicated, but only for a confirmed email and never for an admin
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email != "" {
		err = s.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
		if err == nil {
			if !id.EmailConfirmed {
				log.Printf("⚠️ Refused to link unconfirmed hosted identity %s to profile %d", id.ProviderID, profile.ID)
				return nil, fmt.Errorf("email %s is not confirmed by the identity provider: %w", email, ErrUnauthorized)
			}
			if profile.IsAdmin() {
				log.Printf("⚠️ Refused to link hosted identity %s to admin profile %d", id.ProviderID, profile.ID)
				return nil, fmt.Errorf("admin profiles cannot sign in through the identity provider: %w", ErrUnauthorized)
			}
			if !profile.IsActive {
				return nil, fmt.Errorf("profile %d is deactivated: %w", profile.ID, ErrUnauthorized)
			}
			providerID := id.ProviderID
			if err := s.db.WithContext(ctx).Model(&profile).Update("auth_provider_id", &providerID).Error; err != nil {
				return nil, err
			}
			log.Printf("✅ Linked hosted identity to profile %d", profile.ID)
			return &profile, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	role := models.Role(id.Role)
	if role != models.RoleWorker {
		role = models.RoleClient
	}
	name := strings.TrimSpace(id.FullName)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	providerID := id.ProviderID
	profile = models.Profile{
		FullName:       name,
		Email:          email,
		AuthProviderID: &providerID,
		Role:           role,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("provision profile: %w", err)
	}
	log.Printf("✅ Provisioned %s profile %d from hosted identity", profile.Role, profile.ID)
	return &profile, nil
}

// ValidatePasswordStrength validates password strength
func ValidatePasswordStrength(password string) (bool, []string) {
	var problems []string

	if len(password) < 8 {
		problems = append(problems, "password must be at least 8 characters long")
	}
	if len(password) > 128 {
		problems = append(problems, "password must be less than 128 characters")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, char := range password {
		switch {
		case char >= 'A' && char <= 'Z':
			hasUpper = true
		case char >= 'a' && char <= 'z':
			hasLower = true
		case char >= '0' && char <= '9':
			hasDigit = true
		case strings.ContainsRune("!@#$%^&*()_+-=[]{}|;:,.<>?", char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		problems = append(problems, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		problems = append(problems, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		problems = append(problems, "password must contain at least one digit")
	}
	if !hasSpecial {
		problems = append(problems, "password must contain at least one special character")
	}

	return len(problems) == 0, problems
}
