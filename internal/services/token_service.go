package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService mints the HS256 bearer tokens the API accepts. Owners are
// identified only by the token subject, there is no local user store.
type TokenService interface {
	Issue(ownerID string, ttl time.Duration) (string, error)
}

type tokenService struct {
	hmacSecret []byte
	now        func() time.Time
}

func NewTokenService(secret []byte) TokenService {
	return &tokenService{hmacSecret: secret, now: time.Now}
}

func (s *tokenService) Issue(ownerID string, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	if len(s.hmacSecret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": ownerID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(s.hmacSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
