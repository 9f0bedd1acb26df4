package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/UkralStul/blog-service/internal/dataloader"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/wire"
)

func (s *Server) loaders(r *http.Request) *dataloader.Loaders {
	if l := dataloader.For(r.Context()); l != nil {
		return l
	}
	return dataloader.New(s.svc.Store())
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateCommentRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.svc.CreateComment(r.Context(), req.Post, req.ParentComment, req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// Асинхронно уведомляем подписчиков
	s.observer.Publish(c)

	writeJSON(w, http.StatusCreated, wire.FromComment(c))
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	args, err := pagination(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	approved, err := boolParam(r, "approved")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	roots, err := boolParam(r, "roots")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	filter := storage.CommentFilter{Approved: approved, PaginationArgs: args}
	filter.RootsOnly = roots != nil && *roots

	page, err := s.svc.ListComments(r.Context(), chi.URLParam(r, "postId"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Page[wire.Comment]{
		Page:  page.Page,
		Limit: page.Limit,
		Total: page.Total,
		Items: wire.FromComments(page.Items),
	})
}

func (s *Server) countComments(w http.ResponseWriter, r *http.Request) {
	approved, err := boolParam(r, "approved")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.svc.CountComments(r.Context(), chi.URLParam(r, "postId"), approved)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.CountResponse{Count: n})
}

func (s *Server) getComment(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetComment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromComment(c))
}

// getReplies - прямые ответы на комментарий, через дата-лоадер.
func (s *Server) getReplies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parent, err := s.svc.GetComment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	post, err := s.svc.GetPost(ctx, parent.PostID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	replies, err := s.loaders(r).Replies(ctx, []string{parent.ID})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	onlyApproved := s.svc.HidesUnapproved(ctx, post)
	out := make([]wire.Comment, 0, len(replies[0]))
	for _, c := range replies[0] {
		if onlyApproved && !c.Approved {
			continue
		}
		out = append(out, wire.FromComment(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updateComment(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdateCommentRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.svc.UpdateComment(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromComment(c))
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.DeleteComment(r.Context(), chi.URLParam(r, "id"))
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

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	liked, likes, err := s.svc.ToggleLike(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.LikeResponse{Liked: liked, Likes: likes})
}

func (s *Server) setApproval(w http.ResponseWriter, r *http.Request) {
	var req wire.ApprovalRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.svc.Moderate(r.Context(), chi.URLParam(r, "id"), *req.Approved)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromComment(c))
}
