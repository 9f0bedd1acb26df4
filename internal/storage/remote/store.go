package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/transport"
	"github.com/UkralStul/blog-service/internal/wire"
)

// Store реализует storage.Storage поверх REST API блога.
// Автор берётся сервером из токена клиента, а не из переданных структур.
type Store struct {
	client *transport.Client
}

func New(client *transport.Client) *Store {
	return &Store{client: client}
}

func postPath(id string) string    { return "/posts/" + url.PathEscape(id) }
func commentPath(id string) string { return "/comments/" + url.PathEscape(id) }

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := storage.ValidatePost(post); err != nil {
		return nil, err
	}
	req := wire.CreatePostRequest{
		Title:     post.Title,
		Content:   post.Content,
		Excerpt:   post.Excerpt,
		Tags:      post.Tags,
		Published: post.Published,
	}
	var out wire.Post
	if err := s.client.Post(ctx, "/posts", req, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, patch domain.PostPatch) (*domain.Post, error) {
	if err := storage.ValidatePatch(patch); err != nil {
		return nil, err
	}
	var out wire.Post
	if err := s.client.Put(ctx, postPath(id), wire.PatchRequest(patch), &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

func (s *Store) DeletePost(ctx context.Context, id string) (bool, error) {
	return s.remove(ctx, postPath(id))
}

func (s *Store) remove(ctx context.Context, path string) (bool, error) {
	var out wire.DeleteResponse
	err := s.client.Delete(ctx, path, &out)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Deleted, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	return s.getPost(ctx, postPath(id))
}

func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	return s.getPost(ctx, "/posts/slug/"+url.PathEscape(slug))
}

func (s *Store) getPost(ctx context.Context, path string) (*domain.Post, error) {
	var out wire.Post
	if err := s.client.Get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

// GetPostsByAuthor проходит по всем страницам выборки автора.
func (s *Store) GetPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error) {
	filter := storage.PostFilter{
		AuthorID:       authorID,
		PaginationArgs: storage.PaginationArgs{Page: 1, Limit: storage.MaxLimit},
	}
	posts := make([]*domain.Post, 0)
	for {
		page, err := s.ListPosts(ctx, filter)
		if err != nil {
			return nil, err
		}
		posts = append(posts, page.Items...)
		if len(page.Items) == 0 || len(posts) >= page.Total {
			return posts, nil
		}
		filter.Page++
	}
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) (*domain.Page[*domain.Post], error) {
	args := filter.PaginationArgs.Normalize()
	q := pageQuery(args)
	if filter.Published == nil {
		q.Set("published", "all")
	} else {
		q.Set("published", strconv.FormatBool(*filter.Published))
	}
	if filter.AuthorID != "" {
		q.Set("author", filter.AuthorID)
	}
	if filter.Tag != "" {
		q.Set("tag", filter.Tag)
	}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}

	var out domain.Page[wire.Post]
	if err := s.client.Get(ctx, "/posts", q, &out); err != nil {
		return nil, err
	}
	items := make([]*domain.Post, 0, len(out.Items))
	for _, p := range out.Items {
		items = append(items, p.Domain())
	}
	return &domain.Page[*domain.Post]{Page: out.Page, Limit: out.Limit, Total: out.Total, Items: items}, nil
}

func pageQuery(args storage.PaginationArgs) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(args.Page))
	q.Set("limit", strconv.Itoa(args.Limit))
	return q
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	if err := storage.ValidateComment(comment); err != nil {
		return nil, err
	}
	req := wire.CreateCommentRequest{
		Post:          comment.PostID,
		Content:       comment.Content,
		ParentComment: comment.ParentID,
	}
	var out wire.Comment
	if err := s.client.Post(ctx, "/comments", req, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	var out wire.Comment
	if err := s.client.Get(ctx, commentPath(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

func (s *Store) UpdateComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	if err := storage.ValidateCommentContent(content); err != nil {
		return nil, err
	}
	var out wire.Comment
	if err := s.client.Put(ctx, commentPath(id), wire.UpdateCommentRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

func (s *Store) SetApproved(ctx context.Context, id string, approved bool) (*domain.Comment, error) {
	var out wire.Comment
	if err := s.client.Put(ctx, commentPath(id)+"/approval", wire.ApprovalRequest{Approved: &approved}, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) (bool, error) {
	return s.remove(ctx, commentPath(id))
}

// ToggleLike ставит лайк от имени владельца токена клиента.
// Лайк от чужого identityID отклоняется с ErrForbidden.
func (s *Store) ToggleLike(ctx context.Context, commentID, identityID string) (bool, error) {
	if identityID == "" {
		return false, fmt.Errorf("toggle like: %w", domain.ErrUnauthorized)
	}
	var me domain.Identity
	if err := s.client.Get(ctx, "/auth/me", nil, &me); err != nil {
		return false, err
	}
	if me.ID != identityID {
		return false, fmt.Errorf("toggle like as %s: %w", identityID, domain.ErrForbidden)
	}
	var out wire.LikeResponse
	if err := s.client.Post(ctx, commentPath(commentID)+"/like", nil, &out); err != nil {
		return false, err
	}
	return out.Liked, nil
}

// === Pagination Methods ===

func (s *Store) ListCommentsByPost(ctx context.Context, postID string, filter storage.CommentFilter) (*domain.Page[*domain.Comment], error) {
	q := pageQuery(filter.PaginationArgs.Normalize())
	if filter.Approved != nil {
		q.Set("approved", strconv.FormatBool(*filter.Approved))
	}
	if filter.RootsOnly {
		q.Set("roots", "true")
	}

	var out domain.Page[wire.Comment]
	if err := s.client.Get(ctx, "/comments/post/"+url.PathEscape(postID), q, &out); err != nil {
		return nil, err
	}
	items := make([]*domain.Comment, 0, len(out.Items))
	for _, c := range out.Items {
		items = append(items, c.Domain())
	}
	return &domain.Page[*domain.Comment]{Page: out.Page, Limit: out.Limit, Total: out.Total, Items: items}, nil
}

func (s *Store) CountComments(ctx context.Context, postID string, approved *bool) (int, error) {
	q := url.Values{}
	if approved != nil {
		q.Set("approved", strconv.FormatBool(*approved))
	}
	var out wire.CountResponse
	if err := s.client.Get(ctx, "/comments/post/"+url.PathEscape(postID)+"/count", q, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// === Dataloader Method ===

// GetCommentsByParentIDs: у API нет пакетного эндпоинта, поэтому по запросу на родителя.
func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error) {
	result := make(map[string][]*domain.Comment, len(parentIDs))
	for _, id := range parentIDs {
		var out []wire.Comment
		err := s.client.Get(ctx, commentPath(id)+"/replies", nil, &out)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, c := range out {
			result[id] = append(result[id], c.Domain())
		}
	}
	return result, nil
}
