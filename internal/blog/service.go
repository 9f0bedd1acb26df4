package blog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/identity"
	"github.com/UkralStul/blog-service/internal/storage"
)

// NewPost - поля, которые задаёт автор при создании поста.
type NewPost struct {
	Title     string
	Content   string
	Excerpt   string
	Tags      []string
	Published bool
}

// Service применяет правила доступа поверх хранилища:
// писать может только аутентифицированный пользователь, менять - только автор,
// черновики видны только своему автору.
type Service struct {
	store storage.Storage
	ids   identity.Provider
	log   *zap.Logger
}

func New(store storage.Storage, ids identity.Provider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ids: ids, log: log}
}

func (s *Service) Store() storage.Storage { return s.store }

// Current - личность вызывающего.
func (s *Service) Current(ctx context.Context) domain.Identity {
	return s.ids.Current(ctx)
}

func (s *Service) caller(ctx context.Context, op string) (domain.Identity, error) {
	who := s.ids.Current(ctx)
	if who.IsAnonymous() {
		return who, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	return who, nil
}

// === Posts ===

func (s *Service) CreatePost(ctx context.Context, in NewPost) (*domain.Post, error) {
	who, err := s.caller(ctx, "create post")
	if err != nil {
		return nil, err
	}
	post := &domain.Post{
		Title:     in.Title,
		Content:   in.Content,
		Excerpt:   in.Excerpt,
		Tags:      in.Tags,
		Published: in.Published,
		Author:    who.Ref(),
	}
	if err := storage.ValidatePost(post); err != nil {
		return nil, err
	}

	created, err := s.store.CreatePost(ctx, post)
	if err != nil {
		return nil, err
	}
	s.log.Info("post created", zap.String("post_id", created.ID), zap.String("author_id", who.ID))
	return created, nil
}

func (s *Service) UpdatePost(ctx context.Context, id string, patch domain.PostPatch) (*domain.Post, error) {
	who, err := s.caller(ctx, "update post")
	if err != nil {
		return nil, err
	}
	if err := storage.ValidatePatch(patch); err != nil {
		return nil, err
	}
	if _, err := s.ownPost(ctx, who, id); err != nil {
		return nil, err
	}
	return s.store.UpdatePost(ctx, id, patch)
}

func (s *Service) DeletePost(ctx context.Context, id string) (bool, error) {
	who, err := s.caller(ctx, "delete post")
	if err != nil {
		return false, err
	}
	if _, err := s.ownPost(ctx, who, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	removed, err := s.store.DeletePost(ctx, id)
	if err == nil && removed {
		s.log.Info("post deleted", zap.String("post_id", id), zap.String("author_id", who.ID))
	}
	return removed, err
}

func (s *Service) ownPost(ctx context.Context, who domain.Identity, id string) (*domain.Post, error) {
	post, err := s.store.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Author.ID != who.ID {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrForbidden)
	}
	return post, nil
}

func (s *Service) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	post, err := s.store.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.visible(ctx, post)
}

func (s *Service) GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.visible(ctx, post)
}

// visible скрывает чужие черновики так, будто их нет.
func (s *Service) visible(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if !post.Published && s.ids.Current(ctx).ID != post.Author.ID {
		return nil, fmt.Errorf("post %s: %w", post.ID, domain.ErrNotFound)
	}
	return post, nil
}

// ListPosts возвращает опубликованные посты; черновики попадают в выборку,
// только если вызывающий запрашивает собственные посты.
func (s *Service) ListPosts(ctx context.Context, filter storage.PostFilter) (*domain.Page[*domain.Post], error) {
	if filter.Published != nil && *filter.Published {
		return s.store.ListPosts(ctx, filter)
	}

	who := s.ids.Current(ctx)
	if filter.AuthorID == "" && !who.IsAnonymous() {
		filter.AuthorID = who.ID
	}
	if filter.AuthorID != who.ID || who.IsAnonymous() {
		switch {
		case filter.Published == nil:
		case who.IsAnonymous():
			return nil, fmt.Errorf("list drafts: %w", domain.ErrUnauthorized)
		default:
			return nil, fmt.Errorf("drafts of %q: %w", filter.AuthorID, domain.ErrForbidden)
		}
		return storage.FindPublished(ctx, s.store, filter)
	}
	return s.store.ListPosts(ctx, filter)
}

func (s *Service) ListPublished(ctx context.Context, filter storage.PostFilter) (*domain.Page[*domain.Post], error) {
	return storage.FindPublished(ctx, s.store, filter)
}

// ListMine - все посты вызывающего, включая черновики.
func (s *Service) ListMine(ctx context.Context, args storage.PaginationArgs) (*domain.Page[*domain.Post], error) {
	who, err := s.caller(ctx, "list own posts")
	if err != nil {
		return nil, err
	}
	return s.store.ListPosts(ctx, storage.PostFilter{AuthorID: who.ID, PaginationArgs: args})
}

// === Comments ===

// commentablePost возвращает пост, к которому вызывающий может обращаться.
func (s *Service) commentablePost(ctx context.Context, postID string) (*domain.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrPostNotFound)
	}
	return post, err
}

func (s *Service) CreateComment(ctx context.Context, postID string, parentID *string, content string) (*domain.Comment, error) {
	who, err := s.caller(ctx, "create comment")
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateCommentContent(content); err != nil {
		return nil, err
	}
	if _, err := s.commentablePost(ctx, postID); err != nil {
		return nil, err
	}

	created, err := s.store.CreateComment(ctx, &domain.Comment{
		PostID:   postID,
		ParentID: parentID,
		Author:   who.Ref(),
		Content:  content,
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("comment created",
		zap.String("comment_id", created.ID),
		zap.String("post_id", postID),
		zap.String("author_id", who.ID))
	return created, nil
}

func (s *Service) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	c, err := s.store.GetCommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Approved {
		return c, nil
	}
	// скрытый модерацией комментарий видят его автор и автор поста
	who := s.ids.Current(ctx)
	if !who.IsAnonymous() && (who.ID == c.Author.ID || s.isPostAuthor(ctx, who, c.PostID)) {
		return c, nil
	}
	return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
}

func (s *Service) UpdateComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	who, err := s.caller(ctx, "update comment")
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateCommentContent(content); err != nil {
		return nil, err
	}
	c, err := s.store.GetCommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Author.ID != who.ID {
		return nil, fmt.Errorf("comment %s: %w", id, domain.ErrForbidden)
	}
	return s.store.UpdateComment(ctx, id, content)
}

// DeleteComment доступен автору комментария и автору поста.
func (s *Service) DeleteComment(ctx context.Context, id string) (bool, error) {
	who, err := s.caller(ctx, "delete comment")
	if err != nil {
		return false, err
	}
	c, err := s.store.GetCommentByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if c.Author.ID != who.ID && !s.isPostAuthor(ctx, who, c.PostID) {
		return false, fmt.Errorf("comment %s: %w", id, domain.ErrForbidden)
	}
	return s.store.DeleteComment(ctx, id)
}

func (s *Service) ToggleLike(ctx context.Context, commentID string) (bool, int, error) {
	who, err := s.caller(ctx, "toggle like")
	if err != nil {
		return false, 0, err
	}
	liked, err := s.store.ToggleLike(ctx, commentID, who.ID)
	if err != nil {
		return false, 0, err
	}
	c, err := s.store.GetCommentByID(ctx, commentID)
	if err != nil {
		return false, 0, err
	}
	return liked, c.Likes, nil
}

// Moderate меняет флаг approved. Доступно только автору поста.
func (s *Service) Moderate(ctx context.Context, commentID string, approved bool) (*domain.Comment, error) {
	who, err := s.caller(ctx, "moderate comment")
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCommentByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !s.isPostAuthor(ctx, who, c.PostID) {
		return nil, fmt.Errorf("comment %s: %w", commentID, domain.ErrForbidden)
	}
	updated, err := s.store.SetApproved(ctx, commentID, approved)
	if err != nil {
		return nil, err
	}
	s.log.Info("comment moderated", zap.String("comment_id", commentID), zap.Bool("approved", approved))
	return updated, nil
}

func (s *Service) isPostAuthor(ctx context.Context, who domain.Identity, postID string) bool {
	post, err := s.store.GetPostByID(ctx, postID)
	return err == nil && post.Author.ID == who.ID
}

// ApprovedFilter проверяет фильтр approved, который запросил вызывающий.
// Неодобренные комментарии видит только автор поста: остальным без фильтра
// подставляется approved=true, а явный запрос approved=false отклоняется.
func (s *Service) ApprovedFilter(ctx context.Context, post *domain.Post, approved *bool) (*bool, error) {
	if approved != nil && *approved {
		return approved, nil
	}
	if s.isAuthorOf(ctx, post) {
		return approved, nil
	}
	if approved == nil {
		yes := true
		return &yes, nil
	}
	if s.ids.Current(ctx).IsAnonymous() {
		return nil, fmt.Errorf("unapproved comments: %w", domain.ErrUnauthorized)
	}
	return nil, fmt.Errorf("unapproved comments of post %s: %w", post.ID, domain.ErrForbidden)
}

// HidesUnapproved сообщает, что вызывающему нельзя видеть неодобренные комментарии поста.
func (s *Service) HidesUnapproved(ctx context.Context, post *domain.Post) bool {
	return !s.isAuthorOf(ctx, post)
}

func (s *Service) isAuthorOf(ctx context.Context, post *domain.Post) bool {
	who := s.ids.Current(ctx)
	return !who.IsAnonymous() && who.ID == post.Author.ID
}

func (s *Service) ListComments(ctx context.Context, postID string, filter storage.CommentFilter) (*domain.Page[*domain.Comment], error) {
	post, err := s.commentablePost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if filter.Approved, err = s.ApprovedFilter(ctx, post, filter.Approved); err != nil {
		return nil, err
	}
	return s.store.ListCommentsByPost(ctx, postID, filter)
}

func (s *Service) CountComments(ctx context.Context, postID string, approved *bool) (int, error) {
	post, err := s.commentablePost(ctx, postID)
	if err != nil {
		return 0, err
	}
	if approved, err = s.ApprovedFilter(ctx, post, approved); err != nil {
		return 0, err
	}
	return s.store.CountComments(ctx, postID, approved)
}
