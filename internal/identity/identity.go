package identity

import (
	"context"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"
)

type contextKey string

const key = contextKey("identity")

// WithIdentity кладёт личность вызывающего в контекст.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, key, id)
}

// FromContext извлекает личность из контекста. Без неё вызывающий - аноним.
func FromContext(ctx context.Context) domain.Identity {
	id, ok := ctx.Value(key).(domain.Identity)
	if !ok {
		return domain.Anonymous
	}
	return id
}

// Provider отвечает на вопрос "кто сейчас вызывает".
type Provider interface {
	Current(ctx context.Context) domain.Identity
}

// ContextProvider читает личность, положенную middleware аутентификации.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) domain.Identity {
	return FromContext(ctx)
}

// Static всегда возвращает одну и ту же личность (CLI, тесты).
type Static domain.Identity

func (s Static) Current(context.Context) domain.Identity {
	return domain.Identity(s)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Identity  domain.Identity `json:"user"`
}

// Authenticator - регистрация, вход и проверка токенов.
type Authenticator interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Identity, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Logout(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}
