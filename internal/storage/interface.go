package storage

import (
	"context"

	"github.com/UkralStul/blog-service/internal/domain"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// PaginationArgs - аргументы для постраничной выборки. Page начинается с 1.
type PaginationArgs struct {
	Page  int
	Limit int
}

// Normalize подставляет значения по умолчанию и ограничивает limit.
func (a PaginationArgs) Normalize() PaginationArgs {
	if a.Page < 1 {
		a.Page = 1
	}
	if a.Limit < 1 {
		a.Limit = DefaultLimit
	}
	if a.Limit > MaxLimit {
		a.Limit = MaxLimit
	}
	return a
}

// Offset - смещение первой записи страницы.
func (a PaginationArgs) Offset() int {
	return (a.Page - 1) * a.Limit
}

// Window возвращает границы [start, end) страницы в срезе длины total.
func (a PaginationArgs) Window(total int) (int, int) {
	start := a.Offset()
	if start > total {
		start = total
	}
	end := start + a.Limit
	if end > total {
		end = total
	}
	return start, end
}

// PostFilter - фильтр выборки постов. Нулевые поля не фильтруют.
type PostFilter struct {
	Published *bool
	AuthorID  string
	Tag       string
	Query     string
	PaginationArgs
}

// CommentFilter - фильтр выборки комментариев поста.
type CommentFilter struct {
	Approved *bool
	// RootsOnly оставляет только комментарии верхнего уровня.
	RootsOnly bool
	PaginationArgs
}

// ContentStore определяет контракт хранилища постов.
type ContentStore interface {
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	UpdatePost(ctx context.Context, id string, patch domain.PostPatch) (*domain.Post, error)
	// DeletePost возвращает false без ошибки, если поста нет.
	DeletePost(ctx context.Context, id string) (bool, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error)
	GetPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) (*domain.Page[*domain.Post], error)
}

// CommentStore определяет контракт хранилища комментариев.
type CommentStore interface {
	CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error)
	GetCommentByID(ctx context.Context, id string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, id, content string) (*domain.Comment, error)
	SetApproved(ctx context.Context, id string, approved bool) (*domain.Comment, error)
	// DeleteComment удаляет комментарий вместе со всеми ответами на него.
	DeleteComment(ctx context.Context, id string) (bool, error)
	// ToggleLike возвращает true, если после вызова комментарий лайкнут identityID.
	ToggleLike(ctx context.Context, commentID, identityID string) (bool, error)

	// Методы для пагинации
	ListCommentsByPost(ctx context.Context, postID string, filter CommentFilter) (*domain.Page[*domain.Comment], error)
	CountComments(ctx context.Context, postID string, approved *bool) (int, error)

	// Методы для Dataloader'ов
	GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error)
}

// Storage - посты и комментарии вместе, как их видит сервис блога.
type Storage interface {
	ContentStore
	CommentStore
}

// UserStore хранит учётные записи локального сервиса аутентификации.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// FindPublished возвращает только опубликованные посты, дополнительно отфильтрованные filter.
func FindPublished(ctx context.Context, s ContentStore, filter PostFilter) (*domain.Page[*domain.Post], error) {
	published := true
	filter.Published = &published
	return s.ListPosts(ctx, filter)
}
