package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"choraid-server/config"
	"choraid-server/models"
	"choraid-server/types"
)

// JWTService handles JWT token operations
type JWTService struct {
	db   *gorm.DB
	cfg  config.JWTConfig
	cost int
}

// NewJWTService creates a new JWT service
func NewJWTService(db *gorm.DB, cfg config.JWTConfig) *JWTService {
	if cfg.ExpiryHours <= 0 {
		cfg.ExpiryHours = 24
	}
	if cfg.RefreshDays <= 0 {
		cfg.RefreshDays = 30
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "choraid-server"
	}
	return &JWTService{db: db, cfg: cfg, cost: 12}
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// ClientMeta identifies the device a refresh token was issued to
type ClientMeta struct {
	DeviceID  string
	UserAgent string
	IPAddress string
}

// GenerateTokenPair generates both access and refresh tokens
func (js *JWTService) GenerateTokenPair(ctx context.Context, profile *models.Profile, meta ClientMeta) (*TokenPair, error) {
	accessToken, expiresIn, err := js.generateAccessToken(profile)
	if err != nil {
		return nil, err
	}

	refreshToken, err := js.generateRefreshToken(ctx, profile.ID, meta)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    "Bearer",
	}, nil
}

func (js *JWTService) generateAccessToken(profile *models.Profile) (string, int64, error) {
	now := time.Now()
	ttl := time.Duration(js.cfg.ExpiryHours) * time.Hour
	claims := &types.Claims{
		ProfileID: profile.ID,
		Role:      string(profile.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    js.cfg.Issuer,
			Subject:   strconv.FormatUint(uint64(profile.ID), 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(js.cfg.Secret))
	if err != nil {
		return "", 0, err
	}
	return tokenString, int64(ttl.Seconds()), nil
}

// generateRefreshToken generates a long-lived refresh token
func (js *JWTService) generateRefreshToken(ctx context.Context, profileID uint, meta ClientMeta) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	tokenString := hex.EncodeToString(tokenBytes)

	refreshToken := &models.RefreshToken{
		Token:     tokenString,
		ProfileID: profileID,
		ExpiresAt: time.Now().Add(time.Duration(js.cfg.RefreshDays) * 24 * time.Hour),
		DeviceID:  meta.DeviceID,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}
	if err := js.db.WithContext(ctx).Create(refreshToken).Error; err != nil {
		return "", err
	}

	log.Printf("✅ Refresh token generated for profile %d", profileID)
	return tokenString, nil
}

// ValidateAccessToken parses a locally issued access token
func (js *JWTService) ValidateAccessToken(tokenString string) (*types.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &types.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(js.cfg.Secret), nil
	}, jwt.WithIssuer(js.cfg.Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*types.Claims)
	if !ok || !token.Valid || claims.ProfileID == 0 {
		return nil, fmt.Errorf("invalid token claims: %w", ErrUnauthorized)
	}
	return claims, nil
}

// ValidateRefreshToken validates a refresh token
func (js *JWTService) ValidateRefreshToken(ctx context.Context, tokenString string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := js.db.WithContext(ctx).Where("token = ?", tokenString).First(&refreshToken).Error; err != nil {
		return nil, fmt.Errorf("refresh token not found: %w", ErrUnauthorized)
	}
	if !refreshToken.IsValid() {
		return nil, fmt.Errorf("refresh token is invalid or expired: %w", ErrUnauthorized)
	}
	return &refreshToken, nil
}

// RefreshAccessToken issues a new access token for a valid refresh token
func (js *JWTService) RefreshAccessToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	refreshToken, err := js.ValidateRefreshToken(ctx, refreshTokenString)
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	if err := js.db.WithContext(ctx).First(&profile, refreshToken.ProfileID).Error; err != nil {
		return nil, fmt.Errorf("profile not found: %w", ErrUnauthorized)
	}
	if !profile.IsActive {
		return nil, fmt.Errorf("profile deactivated: %w", ErrUnauthorized)
	}

	accessToken, expiresIn, err := js.generateAccessToken(&profile)
	if err != nil {
		return nil, err
	}

	js.db.WithContext(ctx).Model(refreshToken).Update("updated_at", time.Now())

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenString,
		ExpiresIn:    expiresIn,
		TokenType:    "Bearer",
	}, nil
}

// RevokeRefreshToken revokes one refresh token owned by profileID
func (js *JWTService) RevokeRefreshToken(ctx context.Context, profileID uint, tokenString string) error {
	res := js.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ? AND profile_id = ?", tokenString, profileID).
		Update("is_revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("refresh token: %w", ErrNotFound)
	}

	log.Printf("✅ Refresh token revoked for profile %d", profileID)
	return nil
}

// RevokeAllProfileTokens revokes all refresh tokens for a profile
func (js *JWTService) RevokeAllProfileTokens(ctx context.Context, profileID uint) error {
	if err := js.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("profile_id = ? AND is_revoked = ?", profileID, false).
		Update("is_revoked", true).Error; err != nil {
		return err
	}

	log.Printf("✅ All refresh tokens revoked for profile %d", profileID)
	return nil
}

// CleanupExpiredTokens removes expired refresh tokens
func (js *JWTService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	res := js.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("✅ %d expired refresh tokens cleaned up", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// HashPassword hashes a password using bcrypt
func (js *JWTService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), js.cost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func (js *JWTService) CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
