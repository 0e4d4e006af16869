package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims extends JWT standard claims with locker-platform fields.
//
// Tokens are issued by the tenant-management service with the same shared
// secret; Locker Core validates signature, expiry, and required fields but
// never mints tokens itself.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
}

// ParseToken validates and parses a JWT access token, returning the custom claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		// Expiry is surfaced distinctly so clients know to refresh rather
		// than re-authenticate.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	// Only the platform operator may omit a company binding.
	if claims.Role != RoleSuperAdmin && claims.CompanyID == "" {
		return nil, fmt.Errorf("%w: missing company_id", ErrTokenInvalid)
	}

	return claims, nil
}

// Actor converts validated claims into the request-context identity.
func (c *CustomClaims) Actor() Actor {
	return Actor{
		ID:        c.Subject,
		CompanyID: c.CompanyID,
		Role:      c.Role,
	}
}
