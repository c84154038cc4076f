package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaiso/Runbooks/internal/domain"
)

// Claims — claims токена. Principal — стандартный sub.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver проверяет HS256 bearer токены.
type JWTResolver struct {
	secret []byte
	now    func() time.Time
}

// NewJWTResolver создаёт JWTResolver. Пустой secret — ошибка конфигурации.
func NewJWTResolver(secret string) (*JWTResolver, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required for AUTH_MODE=jwt")
	}
	return &JWTResolver{secret: []byte(secret), now: time.Now}, nil
}

// Resolve проверяет подпись и срок действия токена.
func (j *JWTResolver) Resolve(r *http.Request) (domain.Caller, error) {
	raw, err := ExtractToken(r.Header.Get("Authorization"))
	if err != nil {
		return domain.Caller{}, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.Role == "" {
		return domain.Caller{}, fmt.Errorf("%w: sub and role claims are required", ErrInvalidToken)
	}
	return domain.Caller{Principal: claims.Subject, Role: claims.Role}, nil
}

// IssueToken подписывает токен для caller'а (dev и тесты).
func IssueToken(secret string, c domain.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
