package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"peakfit/workout-catalog/internal/domain"
)

const tokenIssuer = "workout-catalog"

var (
	ErrTokenGeneration = errors.New("failed to generate token")
	ErrInvalidCaller   = errors.New("token needs a user id and a known role")
)

// TokenClaims defines the structure of the JWT payload.
type TokenClaims struct {
	UserID string      `json:"uid"`  // User ID
	Role   domain.Role `json:"role"` // User Role
	jwt.RegisteredClaims
}

// AuthService issues the bearer tokens AuthMiddleware accepts. Users are
// managed elsewhere; operators mint tokens through catalogctl.
type AuthService interface {
	IssueToken(caller domain.Caller) (string, error)
	GetJWTSecret() string
}

type authService struct {
	jwtSecret     string
	jwtExpiration time.Duration
	now           func() time.Time
}

// NewAuthService creates a new instance of authService.
func NewAuthService(jwtSecret string, jwtExpiration time.Duration) AuthService {
	return &authService{
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		now:           time.Now,
	}
}

// IssueToken creates a signed HS256 token for caller.
func (s *authService) IssueToken(caller domain.Caller) (string, error) {
	if caller.UserID == "" || !caller.Role.Valid() {
		return "", ErrInvalidCaller
	}
	if s.jwtSecret == "" {
		return "", errors.Join(ErrTokenGeneration, errors.New("jwt secret is empty"))
	}

	now := s.now()
	claims := &TokenClaims{
		UserID: caller.UserID,
		Role:   caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return signedToken, nil
}

// GetJWTSecret returns the JWT secret for middleware authentication
func (s *authService) GetJWTSecret() string {
	return s.jwtSecret
}
