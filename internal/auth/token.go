package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	errMissingSecret      = errors.New("jwt secret not configured")
)

// Service issues and verifies admin session tokens.
type Service struct {
	adminPassword string
	secret        []byte
	ttl           time.Duration
	env           string
}

// NewService constructs an auth Service. In non-production environments an
// empty secret falls back to a dev value.
func NewService(adminPassword, secret, env string, ttl time.Duration) *Service {
	secret = strings.TrimSpace(secret)
	if secret == "" && env != "production" {
		secret = "dev-secret"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		adminPassword: adminPassword,
		secret:        []byte(secret),
		ttl:           ttl,
		env:           env,
	}
}

type adminClaims struct {
	AdminUser string `json:"adminUser"`
	jwt.RegisteredClaims
}

// Login checks the admin password and issues a signed session token.
func (s *Service) Login(adminUser, password string) (string, error) {
	if len(s.secret) == 0 {
		return "", errMissingSecret
	}
	if s.adminPassword == "" || password != s.adminPassword {
		return "", ErrInvalidCredentials
	}
	adminUser = strings.TrimSpace(adminUser)
	if adminUser == "" {
		adminUser = "admin"
	}

	now := time.Now().UTC()
	claims := adminClaims{
		AdminUser: adminUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminUser,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates a session token and returns the admin user name.
func (s *Service) Verify(tokenString string) (string, error) {
	if len(s.secret) == 0 {
		return "", errMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || claims.AdminUser == "" {
		return "", ErrInvalidToken
	}
	return claims.AdminUser, nil
}
