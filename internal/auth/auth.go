package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

// Claims carries the profile fields of the identity provider. Subject is the user id.
type Claims struct {
	BusinessName string `json:"businessName,omitempty"`
	Name         string `json:"name,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	Email        string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens issued with a shared secret
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns the identity it carries
func (v *Verifier) Verify(token string) (*model.UserIdentity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("auth: %w - missing token", biddingerrors.ErrUnauthenticated)
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("auth: %w - token expired", biddingerrors.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("auth: %w - %v", biddingerrors.ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("auth: %w - token has no subject", biddingerrors.ErrUnauthenticated)
	}

	return &model.UserIdentity{
		UserID:       claims.Subject,
		BusinessName: claims.BusinessName,
		Name:         claims.Name,
		CompanyName:  claims.CompanyName,
		Email:        claims.Email,
	}, nil
}

// Issue signs a token for user valid for ttl
func (v *Verifier) Issue(user model.UserIdentity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		BusinessName: user.BusinessName,
		Name:         user.Name,
		CompanyName:  user.CompanyName,
		Email:        user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
