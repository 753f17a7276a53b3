package auth

import (
	"errors"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Claims represents the JWT claims for an authenticated session
type Claims struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and validates session tokens
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewService creates a new auth service
func NewService(jwtSecret string, tokenDuration time.Duration) *Service {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
	}
}

// TokenDuration returns how long issued tokens stay valid
func (s *Service) TokenDuration() time.Duration {
	return s.tokenDuration
}

// HashPassword creates a bcrypt hash of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares a password against a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken creates a JWT for an authenticated user
func (s *Service) GenerateToken(userID int64, displayName, email string) (string, error) {
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

var (
	displayNamePattern = regexp.MustCompile(`^[a-zA-Z\s]*$`)
	lowerPattern       = regexp.MustCompile(`[a-z]`)
	upperPattern       = regexp.MustCompile(`[A-Z]`)
	symbolPattern      = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// ValidateDisplayName returns a user-facing message when the name is unacceptable
func ValidateDisplayName(name string) string {
	if name == "" {
		return "Username is required."
	}
	if len(name) > 50 {
		return "Username must be less than 50 characters."
	}
	if !displayNamePattern.MatchString(name) {
		return "Username cannot contain numbers or special characters."
	}
	return ""
}

// ValidatePassword returns a user-facing message when the password is too weak
func ValidatePassword(password string) string {
	if len(password) < 7 || len(password) > 15 ||
		!lowerPattern.MatchString(password) ||
		!upperPattern.MatchString(password) ||
		!symbolPattern.MatchString(password) {
		return "Password must be 7-15 characters long and include at least one uppercase letter, one lowercase letter, and one non-alphanumeric character."
	}
	return ""
}
