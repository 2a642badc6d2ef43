package utils

import (
	"errors"
	"time"

	"familyportal-backend/shared/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userTokenSubject   = "user"
	portalTokenSubject = "portal"
)

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// PortalClaims marks a browser that answered the security questions
type PortalClaims struct {
	IPAddress string `json:"ip"`
	jwt.RegisteredClaims
}

func jwtSecret() []byte {
	cfg := config.GetConfig()
	if cfg.JWTSecret == "" {
		return []byte("fallback-secret-key-for-development")
	}
	return []byte(cfg.JWTSecret)
}

// GetJWTExpireDuration gets JWT expiration duration from config
func GetJWTExpireDuration() time.Duration {
	hours := config.GetConfig().JWTExpireHours
	if hours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(hours) * time.Hour
}

// GetPortalSessionDuration gets the verified-portal lifetime from config
func GetPortalSessionDuration() time.Duration {
	minutes := config.GetConfig().PortalSessionMinutes
	if minutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(minutes) * time.Minute
}

// GenerateJWT issues a user token
func GenerateJWT(userID uuid.UUID, email, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(GetJWTExpireDuration())

	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userTokenSubject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret())
	return signed, expiresAt, err
}

// ValidateJWT validates a user token
func ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithSubject(userTokenSubject))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GeneratePortalToken issues the time-boxed verified-session marker
func GeneratePortalToken(ipAddress string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(GetPortalSessionDuration())

	tokenID, err := GenerateRandomToken(16)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := PortalClaims{
		IPAddress: ipAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   portalTokenSubject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret())
	return signed, expiresAt, err
}

// ValidatePortalToken validates the verified-session marker
func ValidatePortalToken(tokenString string) (*PortalClaims, error) {
	claims := &PortalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithSubject(portalTokenSubject))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid portal token")
	}
	return claims, nil
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("invalid signing method")
	}
	return jwtSecret(), nil
}
