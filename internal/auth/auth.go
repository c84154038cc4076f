// Package auth определяет вызывающего: principal и роль.
//
// Управление пользователями и ролями живёт снаружи. Сюда identity
// приходит либо подписанным JWT (JWTResolver), либо заголовками от
// доверенного reverse proxy (HeaderResolver).
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shaiso/Runbooks/internal/domain"
)

// Ошибки аутентификации.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
)

// Заголовки для HeaderResolver.
const (
	HeaderPrincipal = "X-Runbook-Principal"
	HeaderRole      = "X-Runbook-Role"
)

// Resolver определяет вызывающего по запросу.
type Resolver interface {
	Resolve(r *http.Request) (domain.Caller, error)
}

// HeaderResolver читает principal и роль из заголовков.
// Использовать только за proxy, который сам аутентифицирует пользователя.
type HeaderResolver struct{}

// Resolve возвращает ErrUnauthenticated, если заголовков нет.
func (HeaderResolver) Resolve(r *http.Request) (domain.Caller, error) {
	c := domain.Caller{
		Principal: strings.TrimSpace(r.Header.Get(HeaderPrincipal)),
		Role:      strings.TrimSpace(r.Header.Get(HeaderRole)),
	}
	if c.Principal == "" || c.Role == "" {
		return domain.Caller{}, ErrUnauthenticated
	}
	return c, nil
}

type callerKey struct{}

// WithCaller кладёт вызывающего в контекст.
func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom достаёт вызывающего из контекста.
func CallerFrom(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(domain.Caller)
	return c, ok
}

// ExtractToken достаёт токен из "Authorization: Bearer <token>".
func ExtractToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrUnauthenticated
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}
