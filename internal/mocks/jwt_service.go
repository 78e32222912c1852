package mocks

import (
	"context"

	"github.com/phrazzld/tasknotify/internal/service/auth"
)

// MockJWTService implements auth.JWTService for testing
type MockJWTService struct {
	// GenerateTokenFn allows test cases to mock the GenerateToken behavior
	GenerateTokenFn func(ctx context.Context, userID string) (string, error)

	// ValidateTokenFn allows test cases to mock the ValidateToken behavior
	ValidateTokenFn func(ctx context.Context, tokenString string) (*auth.Claims, error)

	// Default values used when functions aren't explicitly defined
	Token       string
	Err         error
	ValidateErr error
	Claims      *auth.Claims
}

var _ auth.JWTService = (*MockJWTService)(nil)

// GenerateToken implements the auth.JWTService interface
func (m *MockJWTService) GenerateToken(ctx context.Context, userID string) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, userID)
	}
	return m.Token, m.Err
}

// ValidateToken implements the auth.JWTService interface
func (m *MockJWTService) ValidateToken(
	ctx context.Context,
	tokenString string,
) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return m.Claims, m.ValidateErr
}

// TokenMap returns a ValidateTokenFn that accepts exactly the given tokens,
// mapping each to its user id, and rejects everything else with
// auth.ErrInvalidToken.
func TokenMap(tokens map[string]string) func(ctx context.Context, tokenString string) (*auth.Claims, error) {
	return func(_ context.Context, tokenString string) (*auth.Claims, error) {
		if tokenString == "" {
			return nil, auth.ErrMissingToken
		}
		userID, ok := tokens[tokenString]
		if !ok {
			return nil, auth.ErrInvalidToken
		}
		return &auth.Claims{UserID: userID, Subject: userID, TokenType: "access"}, nil
	}
}
