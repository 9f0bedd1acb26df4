package blog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/identity"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"
)

var (
	alice = domain.Identity{ID: "alice", Name: "Alice", Email: "alice@example.com"}
	bob   = domain.Identity{ID: "bob", Email: "bob@example.com"}
)

func as(who domain.Identity) context.Context {
	return identity.WithIdentity(context.Background(), who)
}

func newTestService(t *testing.T) (*Service, *inmemory.Store) {
	t.Helper()
	store := inmemory.New()
	return New(store, identity.ContextProvider{}, nil), store
}

func ptr[T any](v T) *T { return &v }

func TestService_CreatePostAttributesCaller(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.CreatePost(as(bob), NewPost{Title: "Hello", Published: true})
	require.NoError(t, err)
	// имя подставляется из email, если не задано
	assert.Equal(t, domain.AuthorRef{ID: "bob", Name: "bob@example.com"}, post.Author)

	_, err = svc.CreatePost(as(bob), NewPost{Title: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_AnonymousWritesLeaveStateUnchanged(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(as(alice), NewPost{Title: "Hello", Published: true})
	require.NoError(t, err)
	c, err := svc.CreateComment(as(bob), post.ID, nil, "first")
	require.NoError(t, err)

	_, err = svc.CreatePost(ctx, NewPost{Title: "Anon"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.CreateComment(ctx, post.ID, nil, "anon")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, _, err = svc.ToggleLike(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.DeleteComment(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.DeletePost(ctx, post.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.UpdateComment(ctx, c.ID, "changed")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	page, err := store.ListPosts(ctx, storage.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	got, err := store.GetCommentByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content)
	assert.Empty(t, got.LikedBy)

	n, err := store.CountComments(ctx, post.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_OnlyAuthorChangesPost(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.CreatePost(as(alice), NewPost{Title: "Hello", Published: true})
	require.NoError(t, err)

	_, err = svc.UpdatePost(as(bob), post.ID, domain.PostPatch{Title: ptr("Hijacked")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.DeletePost(as(bob), post.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	updated, err := svc.UpdatePost(as(alice), post.ID, domain.PostPatch{Title: ptr("Hello Again")})
	require.NoError(t, err)
	assert.Equal(t, "hello-again", updated.Slug)

	removed, err := svc.DeletePost(as(alice), post.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.DeletePost(as(alice), post.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestService_DraftsVisibleOnlyToAuthor(t *testing.T) {
	svc, _ := newTestService(t)

	draft, err := svc.CreatePost(as(alice), NewPost{Title: "Draft"})
	require.NoError(t, err)
	_, err = svc.CreatePost(as(alice), NewPost{Title: "Public", Published: true})
	require.NoError(t, err)

	_, err = svc.GetPostBySlug(as(bob), draft.Slug)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetPost(context.Background(), draft.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.GetPostBySlug(as(alice), draft.Slug)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)

	mine, err := svc.ListMine(as(alice), storage.PaginationArgs{})
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total)

	published, err := svc.ListPublished(as(bob), storage.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, published.Total)

	// без фильтра published чужой автор виден только опубликованным
	theirs, err := svc.ListPosts(as(bob), storage.PostFilter{AuthorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, theirs.Total)

	_, err = svc.ListPosts(as(bob), storage.PostFilter{AuthorID: "alice", Published: ptr(false)})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.ListPosts(context.Background(), storage.PostFilter{Published: ptr(false)})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	drafts, err := svc.ListPosts(as(alice), storage.PostFilter{Published: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, 1, drafts.Total)

	_, err = svc.CreateComment(as(bob), draft.ID, nil, "sneaky")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestService_CommentPermissions(t *testing.T) {
	svc, _ := newTestService(t)
	carol := domain.Identity{ID: "carol", Name: "Carol"}

	post, err := svc.CreatePost(as(alice), NewPost{Title: "Hello", Published: true})
	require.NoError(t, err)
	c, err := svc.CreateComment(as(bob), post.ID, nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "bob", c.Author.ID)

	_, err = svc.UpdateComment(as(carol), c.ID, "edit")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.UpdateComment(as(bob), c.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	edited, err := svc.UpdateComment(as(bob), c.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)

	_, err = svc.DeleteComment(as(carol), c.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// автор поста может удалять комментарии под своим постом
	removed, err := svc.DeleteComment(as(alice), c.ID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestService_ModerationAndApprovedVisibility(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.CreatePost(as(alice), NewPost{Title: "Hello", Published: true})
	require.NoError(t, err)
	c1, err := svc.CreateComment(as(bob), post.ID, nil, "ok")
	require.NoError(t, err)
	c2, err := svc.CreateComment(as(bob), post.ID, nil, "spam")
	require.NoError(t, err)

	_, err = svc.Moderate(as(bob), c2.ID, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	hidden, err := svc.Moderate(as(alice), c2.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.Approved)

	// посторонние видят только одобренные комментарии
	page, err := svc.ListComments(context.Background(), post.ID, storage.CommentFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, c1.ID, page.Items[0].ID)

	n, err := svc.CountComments(context.Background(), post.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// явный запрос скрытых комментариев доступен только автору поста
	_, err = svc.CountComments(context.Background(), post.ID, ptr(false))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.CountComments(as(bob), post.ID, ptr(false))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.ListComments(as(bob), post.ID, storage.CommentFilter{Approved: ptr(false)})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	hiddenOnly, err := svc.ListComments(as(alice), post.ID, storage.CommentFilter{Approved: ptr(false)})
	require.NoError(t, err)
	require.Len(t, hiddenOnly.Items, 1)
	assert.Equal(t, c2.ID, hiddenOnly.Items[0].ID)

	n, err = svc.CountComments(as(alice), post.ID, ptr(false))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = svc.CountComments(as(alice), post.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.GetComment(context.Background(), c2.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetComment(as(bob), c2.ID)
	assert.NoError(t, err)
	_, err = svc.GetComment(as(alice), c2.ID)
	assert.NoError(t, err)
}

func TestService_ToggleLikeReportsCount(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.CreatePost(as(alice), NewPost{Title: "Hello", Published: true})
	require.NoError(t, err)
	c, err := svc.CreateComment(as(alice), post.ID, nil, "hi")
	require.NoError(t, err)

	liked, likes, err := svc.ToggleLike(as(bob), c.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, likes)

	liked, likes, err = svc.ToggleLike(as(alice), c.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 2, likes)

	liked, likes, err = svc.ToggleLike(as(bob), c.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 1, likes)
}
