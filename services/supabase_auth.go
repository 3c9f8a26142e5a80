package services

import (
	"context"
	"fmt"
	"strings"

	supabase "github.com/nedpals/supabase-go"
)

// Identity is a user asserted by a hosted identity provider
type Identity struct {
	ProviderID     string
	Email          string
	EmailConfirmed bool
	FullName       string
	Role           string
}

// IdentityVerifier resolves an access token issued by a hosted identity provider
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// SupabaseVerifier verifies Supabase Auth access tokens through the Supabase API
type SupabaseVerifier struct {
	client *supabase.Client
}

func NewSupabaseVerifier(url, key string) (*SupabaseVerifier, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase URL and key are required: %w", ErrDisabled)
	}
	return &SupabaseVerifier{client: supabase.CreateClient(url, key)}, nil
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	user, err := v.client.Auth.User(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("supabase user: %v: %w", err, ErrUnauthorized)
	}
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("supabase returned no user: %w", ErrUnauthorized)
	}

	id := &Identity{ProviderID: user.ID, Email: user.Email, EmailConfirmed: !user.ConfirmedAt.IsZero()}
	if name, ok := user.UserMetadata["full_name"].(string); ok {
		id.FullName = strings.TrimSpace(name)
	}
	if role, ok := user.UserMetadata["role"].(string); ok {
		id.Role = strings.ToLower(strings.TrimSpace(role))
	}
	return id, nil
}
