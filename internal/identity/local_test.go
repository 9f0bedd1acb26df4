package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/kv"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(inmemory.New(), kv.NewMemory(), testSecret, time.Hour, nil)
	require.NoError(t, err)
	return l
}

func TestLocal_RegisterLoginResolve(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	id, err := l.Register(ctx, RegisterInput{Name: "Ann", Email: " Ann@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", id.Email)
	assert.NotEmpty(t, id.ID)

	_, err = l.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	session, err := l.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, *id, session.Identity)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	resolved, err := l.Resolve(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, *id, resolved)
}

func TestLocal_RegisterValidation(t *testing.T) {
	l := newTestLocal(t)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"no name", RegisterInput{Email: "a@b.co", Password: "secret1"}},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}},
		{"short password", RegisterInput{Name: "A", Email: "a@b.co", Password: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestLocal_LoginRejectsBadCredentials(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	_, err := l.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = l.Login(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = l.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLocal_LogoutRevokesToken(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	_, err := l.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	first, err := l.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	second, err := l.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, l.Logout(ctx, first.Token))

	_, err = l.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, l.Logout(ctx, first.Token), domain.ErrUnauthorized)

	// другие сессии того же пользователя не затронуты
	_, err = l.Resolve(ctx, second.Token)
	assert.NoError(t, err)
}

func TestLocal_ResolveRejectsBadTokens(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	_, err := l.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	session, err := l.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	_, err = l.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	other, err := NewLocal(inmemory.New(), kv.NewMemory(), "another-secret-of-enough-length", time.Hour, nil)
	require.NoError(t, err)
	_, err = other.Resolve(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ID:        "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = l.Resolve(ctx, unsigned)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	l.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = l.Resolve(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestNewLocal_RequiresSecret(t *testing.T) {
	_, err := NewLocal(inmemory.New(), kv.NewMemory(), "short", time.Hour, nil)
	assert.Error(t, err)
}

func TestContextProvider(t *testing.T) {
	ctx := context.Background()
	assert.True(t, ContextProvider{}.Current(ctx).IsAnonymous())

	ann := domain.Identity{ID: "u1", Name: "Ann"}
	assert.Equal(t, ann, ContextProvider{}.Current(WithIdentity(ctx, ann)))
	assert.Equal(t, ann, Static(ann).Current(ctx))
}
