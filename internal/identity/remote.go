package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/transport"
	"github.com/UkralStul/blog-service/internal/wire"
)

// Remote - аутентификация через REST-бэкенд. После входа токен сохраняется в клиенте,
// и все последующие запросы через тот же клиент идут от имени пользователя.
type Remote struct {
	client *transport.Client
}

func NewRemote(client *transport.Client) *Remote {
	return &Remote{client: client}
}

func (r *Remote) Register(ctx context.Context, in RegisterInput) (*domain.Identity, error) {
	var out struct {
		ID     string `json:"_id"`
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Email  string `json:"email"`
	}
	req := wire.RegisterRequest{Name: in.Name, Email: in.Email, Password: in.Password}
	if err := r.client.Post(ctx, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	id := out.ID
	if id == "" {
		id = out.UserID
	}
	return &domain.Identity{ID: id, Name: out.Name, Email: out.Email}, nil
}

func (r *Remote) Login(ctx context.Context, email, password string) (*Session, error) {
	var out wire.LoginResponse
	if err := r.client.Post(ctx, "/auth/login", wire.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Token == "" {
		return nil, domain.ErrInvalidCredentials
	}
	r.client.SetToken(out.Token)
	return &Session{Token: out.Token, ExpiresAt: out.ExpiresAt, Identity: out.User}, nil
}

// Logout отзывает token; пустой token означает текущий токен клиента.
func (r *Remote) Logout(ctx context.Context, token string) error {
	current := r.client.Token()
	if token == "" {
		token = current
	}
	if token == "" {
		return fmt.Errorf("logout: %w", domain.ErrUnauthorized)
	}

	c := r.client
	if token != current {
		c = r.withToken(token)
	}
	if err := c.Post(ctx, "/auth/logout", nil, nil); err != nil {
		return err
	}
	if token == current {
		r.client.SetToken("")
	}
	return nil
}

func (r *Remote) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Anonymous, fmt.Errorf("resolve: %w", domain.ErrUnauthorized)
	}
	var out domain.Identity
	if err := r.withToken(token).Do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return domain.Anonymous, err
	}
	return out, nil
}

// Current возвращает пользователя текущего токена клиента или анонима.
func (r *Remote) Current(ctx context.Context) domain.Identity {
	token := r.client.Token()
	if token == "" {
		return domain.Anonymous
	}
	id, err := r.Resolve(ctx, token)
	if err != nil {
		return domain.Anonymous
	}
	return id
}

func (r *Remote) withToken(token string) *transport.Client {
	return r.client.With(transport.WithToken(token))
}
