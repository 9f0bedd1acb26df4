package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/kv"
	"github.com/UkralStul/blog-service/internal/storage"
)

const (
	DefaultTokenTTL   = 24 * time.Hour
	minPasswordLength = 6
	revokedPrefix     = "revoked:"
)

type claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Local хранит пользователей в UserStore и выдаёт подписанные HS256 токены.
// Отозванные токены помнятся в kv до истечения их срока.
type Local struct {
	users   storage.UserStore
	revoked kv.Backend
	secret  []byte
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewLocal(users storage.UserStore, revoked kv.Backend, secret string, ttl time.Duration, log *zap.Logger) (*Local, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{
		users:   users,
		revoked: revoked,
		secret:  []byte(secret),
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}, nil
}

func (l *Local) Register(ctx context.Context, in RegisterInput) (*domain.Identity, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", domain.ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("password is too long: %w", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := l.users.CreateUser(ctx, &domain.User{Name: name, Email: email, PasswordHash: string(hash)})
	if err != nil {
		return nil, err
	}
	l.log.Info("user registered", zap.String("user_id", u.ID))
	id := u.Identity()
	return &id, nil
}

func (l *Local) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := l.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	now := l.now()
	expiresAt := now.Add(l.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  u.Name,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(l.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: signed, ExpiresAt: expiresAt, Identity: u.Identity()}, nil
}

// Logout отзывает токен. Повторный вызов с тем же токеном - ErrUnauthorized.
func (l *Local) Logout(ctx context.Context, token string) error {
	c, err := l.verify(ctx, token)
	if err != nil {
		return err
	}
	ttl := c.ExpiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.revoked.Set(ctx, revokedPrefix+c.ID, []byte(c.Subject), ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *Local) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	c, err := l.verify(ctx, token)
	if err != nil {
		return domain.Anonymous, err
	}
	return domain.Identity{ID: c.Subject, Name: c.Name, Email: c.Email}, nil
}

func (l *Local) verify(ctx context.Context, token string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrUnauthorized)
	}
	if c.Subject == "" || c.ID == "" {
		return nil, fmt.Errorf("token without subject: %w", domain.ErrUnauthorized)
	}

	_, err = l.revoked.Get(ctx, revokedPrefix+c.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("token revoked: %w", domain.ErrUnauthorized)
	case !errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	return &c, nil
}
