package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"choraid-server/models"
	"choraid-server/services"
)

// Context keys set by the auth middleware
const (
	ContextUser   = "user"
	ContextUserID = "user_id"
	ContextRole   = "user_role"
)

// Authenticator resolves bearer tokens to active profiles. Local JWTs are
// tried first, then the hosted identity provider when one is configured.
type Authenticator struct {
	auth     *services.AuthService
	jwt      *services.JWTService
	verifier services.IdentityVerifier
}

func NewAuthenticator(auth *services.AuthService, jwt *services.JWTService, verifier services.IdentityVerifier) *Authenticator {
	return &Authenticator{auth: auth, jwt: jwt, verifier: verifier}
}

// Authenticate returns the profile behind token
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.Profile, error) {
	claims, err := a.jwt.ValidateAccessToken(token)
	if err == nil {
		return a.auth.Profile(ctx, claims.ProfileID)
	}
	if a.verifier == nil {
		return nil, err
	}

	identity, verr := a.verifier.Verify(ctx, token)
	if verr != nil {
		return nil, verr
	}
	return a.auth.ResolveIdentity(ctx, identity)
}

// AuthMiddleware requires a valid bearer token
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must be: Bearer <token>",
			})
			return
		}
		a.authenticate(c, tokenString)
	}
}

// OptionalAuthMiddleware sets the user when a valid token is present and never rejects
func (a *Authenticator) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if ok {
			if profile, err := a.Authenticate(c.Request.Context(), tokenString); err == nil {
				setProfile(c, profile)
			}
		}
		c.Next()
	}
}

// WebSocketAuthMiddleware reads the token from the query string, since
// browsers cannot set headers on a WebSocket upgrade
func (a *Authenticator) WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token query parameter required"})
			return
		}
		a.authenticate(c, tokenString)
	}
}

func (a *Authenticator) authenticate(c *gin.Context, tokenString string) {
	profile, err := a.Authenticate(c.Request.Context(), tokenString)
	if err != nil {
		if !errors.Is(err, services.ErrUnauthorized) {
			log.Printf("❌ Authentication error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	setProfile(c, profile)
	c.Next()
}

func setProfile(c *gin.Context, p *models.Profile) {
	c.Set(ContextUser, p)
	c.Set(ContextUserID, p.ID)
	c.Set(ContextRole, p.Role)
}

func bearerToken(header string) (string, bool) {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// CurrentProfile returns the authenticated profile, or nil
func CurrentProfile(c *gin.Context) *models.Profile {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Profile)
	return p
}

// RequireRole rejects authenticated callers whose role is not listed
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentProfile(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}
