package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Participant roles in a video session.
const (
	RoleAttendee  = 0
	RolePublisher = 1
)

// ErrInvalidToken is returned when a session token fails validation.
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims are the video SDK claims embedded in a session token.
type SessionClaims struct {
	AppKey   string `json:"app_key"`
	Topic    string `json:"tpc"`
	RoleType int    `json:"role_type"`
	UserID   string `json:"user_identity,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs video SDK session tokens.
type TokenService struct {
	sdkKey      string
	secret      []byte
	expireHours int
}

// NewTokenService creates a token service. expireHours <= 0 defaults to 2.
func NewTokenService(sdkKey, sdkSecret string, expireHours int) *TokenService {
	if expireHours <= 0 {
		expireHours = 2
	}
	return &TokenService{sdkKey: sdkKey, secret: []byte(sdkSecret), expireHours: expireHours}
}

// Generate signs an HS256 session token authorizing userID to join topic with
// the given role.
func (s *TokenService) Generate(topic, userID string, role int) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		AppKey:   s.sdkKey,
		Topic:    topic,
		RoleType: role,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a session token.
func (s *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
