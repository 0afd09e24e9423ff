package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidCredentials is returned for every verification failure. Callers
// must not distinguish causes in responses.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is the verified caller. It is the only source of user identity
// for authorization decisions.
type Identity struct {
	UserID   int64
	Username string
}

// Verifier turns an opaque bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWTVerifier verifies HS256 tokens signed with the PHUB_JWT_SECRET.
type JWTVerifier struct {
	issuer string
}

// NewJWTVerifier creates a verifier that requires the given iss claim.
func NewJWTVerifier(issuer string) *JWTVerifier {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &JWTVerifier{issuer: issuer}
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	claims, err := ValidateJWT(token, v.issuer)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims.UserID <= 0 || claims.Username == "" {
		return nil, ErrInvalidCredentials
	}
	return &Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
