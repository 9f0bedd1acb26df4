package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/UkralStul/blog-service/internal/blog"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/markdown"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/wire"
)

// listPosts: published=true (по умолчанию), false - только черновики.
// published=all отдает черновики только автору: без author залогиненный
// вызывающий получает все свои посты, аноним и чужой автор - только опубликованные.
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	args, err := pagination(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := storage.PostFilter{
		AuthorID:       q.Get("author"),
		Tag:            q.Get("tag"),
		Query:          q.Get("q"),
		PaginationArgs: args,
	}
	switch v := strings.ToLower(q.Get("published")); v {
	case "", "true":
		yes := true
		filter.Published = &yes
	case "false":
		no := false
		filter.Published = &no
	case "all":
	default:
		s.fail(w, r, badQuery("published"))
		return
	}

	page, err := s.svc.ListPosts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Page[wire.Post]{
		Page:  page.Page,
		Limit: page.Limit,
		Total: page.Total,
		Items: wire.FromPosts(page.Items),
	})
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req wire.CreatePostRequest
	if !s.decode(w, r, &req) {
		return
	}
	post, err := s.svc.CreatePost(r.Context(), blog.NewPost{
		Title:     req.Title,
		Content:   req.Content,
		Excerpt:   req.Excerpt,
		Tags:      req.Tags,
		Published: req.Published,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.FromPost(post))
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.svc.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderPost(post))
}

func (s *Server) getPostBySlug(w http.ResponseWriter, r *http.Request) {
	post, err := s.svc.GetPostBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderPost(post))
}

// renderPost добавляет HTML-версию текста для чтения одного поста.
func (s *Server) renderPost(post *domain.Post) wire.Post {
	out := wire.FromPost(post)
	html, err := markdown.ToHTML(post.Content)
	if err != nil {
		s.log.Warn("markdown render failed", zap.String("post_id", post.ID), zap.Error(err))
		return out
	}
	out.ContentHTML = html
	return out
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdatePostRequest
	if !s.decode(w, r, &req) {
		return
	}
	post, err := s.svc.UpdatePost(r.Context(), chi.URLParam(r, "id"), req.Patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromPost(post))
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.DeletePost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !removed {
		s.fail(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wire.DeleteResponse{Deleted: true})
}

// getThread отдает пост со всем деревом комментариев.
// Ответы загружаются по уровням, каждый уровень - одним батчем дата-лоадера.
func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := s.svc.GetPost(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var roots []*domain.Comment
	args := storage.PaginationArgs{Page: 1, Limit: storage.MaxLimit}
	for {
		page, err := s.svc.ListComments(ctx, post.ID, storage.CommentFilter{RootsOnly: true, PaginationArgs: args})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		roots = append(roots, page.Items...)
		if len(page.Items) == 0 || len(roots) >= page.Total {
			break
		}
		args.Page++
	}

	tree, err := s.buildTree(r, post, roots)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.Thread{Post: s.renderPost(post), Comments: tree})
}

func (s *Server) buildTree(r *http.Request, post *domain.Post, roots []*domain.Comment) ([]wire.ThreadComment, error) {
	ctx := r.Context()
	onlyApproved := s.svc.HidesUnapproved(ctx, post)

	children := make(map[string][]*domain.Comment)
	level := roots
	for len(level) > 0 {
		ids := make([]string, len(level))
		for i, c := range level {
			ids[i] = c.ID
		}
		replies, err := s.loaders(r).Replies(ctx, ids)
		if err != nil {
			return nil, err
		}

		var next []*domain.Comment
		for i, id := range ids {
			for _, c := range replies[i] {
				if onlyApproved && !c.Approved {
					continue
				}
				children[id] = append(children[id], c)
				next = append(next, c)
			}
		}
		level = next
	}

	var walk func([]*domain.Comment) []wire.ThreadComment
	walk = func(cs []*domain.Comment) []wire.ThreadComment {
		out := make([]wire.ThreadComment, 0, len(cs))
		for _, c := range cs {
			out = append(out, wire.ThreadComment{Comment: wire.FromComment(c), Replies: walk(children[c.ID])})
		}
		return out
	}
	return walk(roots), nil
}
