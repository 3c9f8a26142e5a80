package types

import "github.com/golang-jwt/jwt/v5"

// Claims represents the JWT claims issued for a profile
type Claims struct {
	ProfileID uint   `json:"profile_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}
